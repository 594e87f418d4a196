// Command seed fills the database with demo users, posts, comments and likes.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"newsfeed/internal/bootstrap"
	"newsfeed/internal/config"
	"newsfeed/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	comments := flag.Int("comments", 5, "Maximum comments per post")
	likeRatio := flag.Float64("like-ratio", 0.15, "Chance that a user likes a given post or comment")
	maxDays := flag.Int("max-days", 90, "Spread post timestamps over this many days")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	fast := flag.Bool("fast", false, "Hash the shared password at minimum bcrypt cost")
	dryRun := flag.Bool("dry-run", false, "Build data without writing it")
	randomSeed := flag.Int64("seed", 0, "Random seed (0 picks one)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer rt.Close(context.Background())

	s, err := seed.NewSeeder(rt.DB, seed.Options{
		NumUsers:        *numUsers,
		NumPosts:        *numPosts,
		CommentsPerPost: *comments,
		LikeRatio:       *likeRatio,
		MaxDays:         *maxDays,
		ShouldClean:     *shouldClean,
		SkipBcrypt:      *fast,
		DryRun:          *dryRun,
		RandomSeed:      *randomSeed,
	})
	if err != nil {
		log.Fatalf("Failed to prepare seeder: %v", err)
	}

	sum, err := s.Seed(ctx)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d users, %d posts, %d comments, %d post likes, %d comment likes",
		sum.Users, sum.Posts, sum.Comments, sum.PostLikes, sum.CommentLikes)
	log.Printf("All seeded users have the password: %s", seed.DefaultPassword)
}
