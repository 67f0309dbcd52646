package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	"github.com/Sleepy9988/decent-identity/adapters/events"
	"github.com/Sleepy9988/decent-identity/adapters/store"
	"github.com/Sleepy9988/decent-identity/adapters/tokenizer"
	"github.com/Sleepy9988/decent-identity/adapters/verifier"
	"github.com/Sleepy9988/decent-identity/ports"
	"github.com/Sleepy9988/decent-identity/service"
	"github.com/Sleepy9988/decent-identity/transport/http"
)

func main() {
	signKey, err := loadSignKey(os.Getenv("JWT_KEY_FILE"))
	if err != nil {
		log.Fatalf("Failed to load signing key: %v", err)
	}

	logger := watermill.NewStdLogger(false, false)

	var (
		tokens     ports.TokenStore
		challenges ports.ChallengeStore
		profiles   ports.ProfileStore
		eventPub   ports.EventPublisher
	)

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient := redis.NewClient(opts)

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			logger,
		)
		if err != nil {
			log.Fatalf("Failed to create Redis publisher: %v", err)
		}

		tokens = store.NewRedisTokenStore(redisClient)
		challenges = store.NewRedisChallengeStore(redisClient)
		profiles = store.NewRedisProfileStore(redisClient)
		eventPub = events.NewWatermillPublisher(publisher)
	} else {
		// No Redis configured: run everything in process. Sessions and
		// challenges do not survive a restart in this mode.
		log.Println("REDIS_URL not set, using in-memory stores")
		tokens = store.NewMemoryTokenStore()
		challenges = store.NewMemoryChallengeStore()
		profiles = store.NewMemoryProfileStore()
		eventPub = events.NewWatermillPublisher(newLocalPublisher(logger))
	}

	identities := store.NewMemoryIdentityStore()
	requests := store.NewMemoryRequestStore()

	agentURL := os.Getenv("AGENT_URL")
	if agentURL == "" {
		agentURL = "http://localhost:3001"
	}
	presVerifier := verifier.NewHTTPVerifier(agentURL)

	notifier := events.NewWatermillNotifier(logger)

	jwtTokenizer := tokenizer.NewJWTTokenizer(signKey)
	authService := service.NewAuthService(jwtTokenizer, challenges, tokens, profiles, presVerifier, eventPub)
	identityService := service.NewIdentityService(identities, presVerifier, notifier)
	requestService := service.NewRequestService(requests, identities, challenges, presVerifier, notifier)

	router := http.SetupRouter(authService, identityService, requestService, profiles, notifier)

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":9000"
	}
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// loadSignKey reads a PEM-encoded EC private key from path, or generates an
// ephemeral one when no path is given. An ephemeral key invalidates all
// outstanding tokens on restart.
func loadSignKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EC key: %w", err)
	}
	return key, nil
}
