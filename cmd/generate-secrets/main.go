package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/smarttransit/student-booking-engine/internal/utils"
	"github.com/smarttransit/student-booking-engine/pkg/jwt"
)

func main() {
	student := flag.String("student", "", "also print a development access token for this student id")
	issuer := flag.String("issuer", "", "issuer claim for the development token")
	ttl := flag.Duration("ttl", 24*time.Hour, "lifetime of the development token")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator for SmartTransit")
	fmt.Println("===========================================")
	fmt.Println()

	secret, err := utils.GenerateJWTSecret()
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("Add this to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secret)
	fmt.Println()

	if *student != "" {
		// Sign with the configured secret when one exists so the token works against a local server
		signingSecret := secret
		if env, err := godotenv.Read(); err == nil && env["JWT_SECRET"] != "" {
			signingSecret = env["JWT_SECRET"]
			fmt.Println("Signing development token with JWT_SECRET from .env")
		}

		token, err := jwt.NewService(signingSecret, *issuer).GenerateAccessToken(*student, []string{"student"}, *ttl)
		if err != nil {
			log.Fatalf("Failed to generate token: %v", err)
		}
		fmt.Printf("Development token for %s (expires in %s):\n%s\n\n", *student, ttl.String(), token)
	}

	fmt.Println("IMPORTANT: Keep these secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
