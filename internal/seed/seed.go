// Package seed populates a database with demo users, threads, comments and
// likes for development. It is not used by the running server.
package seed

import (
	"fmt"
	"log/slog"
	"time"

	"threads/internal/middleware"
	"threads/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

const batchSize = 200

// Options configuration for the seeder
type Options struct {
	Users       int
	Threads     int
	MaxComments int
	MaxReplies  int
	MaxLikes    int
	// MaxDays spreads thread creation times over the trailing window.
	MaxDays int
	// Seed makes runs reproducible; zero uses the clock.
	Seed int64
}

// DefaultOptions is a small but varied data set.
func DefaultOptions() Options {
	return Options{Users: 25, Threads: 100, MaxComments: 6, MaxReplies: 3, MaxLikes: 10, MaxDays: 30}
}

// Result counts what a run inserted.
type Result struct {
	Users    int
	Threads  int
	Comments int
	Replies  int
	Likes    int
}

// Seeder writes generated rows straight to the database and repairs
// denormalized counters afterwards.
type Seeder struct {
	db    *gorm.DB
	faker *gofakeit.Faker
	now   time.Time
}

func NewSeeder(db *gorm.DB, seed int64) *Seeder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Seeder{db: db, faker: gofakeit.New(seed), now: time.Now().UTC()}
}

// Run generates a full data set according to opts.
func (s *Seeder) Run(opts Options) (*Result, error) {
	if opts.MaxDays <= 0 {
		opts.MaxDays = 30
	}
	res := &Result{}

	users, err := s.createUsers(opts.Users)
	if err != nil {
		return nil, fmt.Errorf("failed to create users: %w", err)
	}
	res.Users = len(users)
	if len(users) == 0 {
		return res, nil
	}

	threads, err := s.createThreads(users, opts.Threads, opts.MaxDays)
	if err != nil {
		return nil, fmt.Errorf("failed to create threads: %w", err)
	}
	res.Threads = len(threads)

	comments, err := s.createChildren(users, threads, opts.MaxComments)
	if err != nil {
		return nil, fmt.Errorf("failed to create comments: %w", err)
	}
	res.Comments = len(comments)

	replies, err := s.createChildren(users, comments, opts.MaxReplies)
	if err != nil {
		return nil, fmt.Errorf("failed to create replies: %w", err)
	}
	res.Replies = len(replies)

	all := make([]*models.Message, 0, len(threads)+len(comments)+len(replies))
	all = append(append(append(all, threads...), comments...), replies...)
	res.Likes, err = s.createLikes(users, all, opts.MaxLikes)
	if err != nil {
		return nil, fmt.Errorf("failed to create likes: %w", err)
	}

	if err := RecountCounters(s.db); err != nil {
		return nil, fmt.Errorf("failed to recount counters: %w", err)
	}

	middleware.Logger.Info("seed complete",
		slog.Int("users", res.Users), slog.Int("threads", res.Threads),
		slog.Int("comments", res.Comments), slog.Int("replies", res.Replies),
		slog.Int("likes", res.Likes))
	return res, nil
}

// ClearAll removes every like, message and user.
func (s *Seeder) ClearAll() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.Like{}, &models.Message{}, &models.User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RecountCounters recomputes like_count and comment_count from the rows they
// summarize.
func RecountCounters(db *gorm.DB) error {
	return db.Exec(`
		UPDATE messages SET
			comment_count = (SELECT COUNT(*) FROM messages AS c WHERE c.thread_id = messages.id),
			like_count = (SELECT COUNT(*) FROM likes AS l WHERE l.message_id = messages.id)
	`).Error
}
