package seed

import (
	"fmt"
	"strings"
	"time"

	"threads/internal/models"
)

func (s *Seeder) createUsers(n int) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		first, last := s.faker.FirstName(), s.faker.LastName()
		u := &models.User{
			ExternalID: "seed_" + strings.ReplaceAll(s.faker.UUID(), "-", ""),
			Email:      strings.ToLower(fmt.Sprintf("%s.%s.%d@example.com", first, last, i)),
			FirstName:  first,
			LastName:   last,
			Username:   strings.ToLower(fmt.Sprintf("%s_%d", s.faker.Username(), i)),
			Bio:        s.faker.Sentence(s.faker.Number(4, 12)),
			ImageURL:   fmt.Sprintf("https://picsum.photos/seed/%s/200/200", s.faker.UUID()),
		}
		if s.faker.Number(1, 4) == 1 {
			u.WebsiteURL = s.faker.URL()
		}
		users = append(users, u)
	}
	if len(users) == 0 {
		return users, nil
	}
	return users, s.db.CreateInBatches(users, batchSize).Error
}

func (s *Seeder) pick(users []*models.User) *models.User {
	return users[s.faker.Number(0, len(users)-1)]
}

func (s *Seeder) buildMessage(author *models.User, parentID *uint, createdAt time.Time) *models.Message {
	m := &models.Message{
		UserID:    author.ID,
		ThreadID:  parentID,
		Content:   s.faker.Sentence(s.faker.Number(4, 24)),
		CreatedAt: createdAt,
	}
	switch s.faker.Number(1, 10) {
	case 1, 2:
		for i := s.faker.Number(1, 4); i > 0; i-- {
			m.MediaFiles = append(m.MediaFiles, fmt.Sprintf("https://picsum.photos/seed/%s/800/800", s.faker.UUID()))
		}
	case 3:
		m.WebsiteURL = s.faker.URL()
	}
	return m
}

func (s *Seeder) createThreads(users []*models.User, n, maxDays int) ([]*models.Message, error) {
	threads := make([]*models.Message, 0, n)
	for i := 0; i < n; i++ {
		minutesBack := s.faker.Number(0, maxDays*24*60)
		at := s.now.Add(-time.Duration(minutesBack) * time.Minute)
		threads = append(threads, s.buildMessage(s.pick(users), nil, at))
	}
	if len(threads) == 0 {
		return threads, nil
	}
	return threads, s.db.CreateInBatches(threads, batchSize).Error
}

// createChildren adds up to max direct children under each parent, each
// created after its parent.
func (s *Seeder) createChildren(users []*models.User, parents []*models.Message, max int) ([]*models.Message, error) {
	if max <= 0 {
		return nil, nil
	}
	var children []*models.Message
	for _, p := range parents {
		parentID := p.ID
		for i := s.faker.Number(0, max); i > 0; i-- {
			at := p.CreatedAt.Add(time.Duration(s.faker.Number(1, 36*60)) * time.Minute)
			if at.After(s.now) {
				at = s.now
			}
			children = append(children, s.buildMessage(s.pick(users), &parentID, at))
		}
	}
	if len(children) == 0 {
		return children, nil
	}
	return children, s.db.CreateInBatches(children, batchSize).Error
}

func (s *Seeder) createLikes(users []*models.User, msgs []*models.Message, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	if max > len(users) {
		max = len(users)
	}
	order := make([]int, len(users))
	for i := range order {
		order[i] = i
	}

	var likes []*models.Like
	for _, m := range msgs {
		s.faker.ShuffleInts(order)
		for _, idx := range order[:s.faker.Number(0, max)] {
			likes = append(likes, &models.Like{UserID: users[idx].ID, MessageID: m.ID, CreatedAt: m.CreatedAt})
		}
	}
	if len(likes) == 0 {
		return 0, nil
	}
	return len(likes), s.db.CreateInBatches(likes, batchSize).Error
}
