// Command main runs the database seeder.
package main

import (
	"context"
	"flag"
	"log"

	"threads/internal/bootstrap"
	"threads/internal/config"
	"threads/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	numUsers := flag.Int("users", defaults.Users, "Number of users to create")
	numThreads := flag.Int("threads", defaults.Threads, "Number of threads to create")
	maxComments := flag.Int("comments", defaults.MaxComments, "Maximum comments per thread")
	maxReplies := flag.Int("replies", defaults.MaxReplies, "Maximum replies per comment")
	maxLikes := flag.Int("likes", defaults.MaxLikes, "Maximum likes per message")
	seedValue := flag.Int64("seed", 0, "Random seed (0 uses the clock)")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Printf("Target: %d users, %d threads, clean=%v", *numUsers, *numThreads, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	rt, err := bootstrap.InitRuntime(context.Background(), cfg, bootstrap.Options{SkipStorage: true})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer rt.Close()

	s := seed.NewSeeder(rt.DB, *seedValue)
	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	res, err := s.Run(seed.Options{
		Users:       *numUsers,
		Threads:     *numThreads,
		MaxComments: *maxComments,
		MaxReplies:  *maxReplies,
		MaxLikes:    *maxLikes,
		MaxDays:     defaults.MaxDays,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d users, %d threads, %d comments, %d replies, %d likes",
		res.Users, res.Threads, res.Comments, res.Replies, res.Likes)
}
