package main

import (
	"fmt"
	"log"

	"github.com/staybook/hotel-booking-backend/internal/utils"
)

func main() {
	fmt.Println("===========================================")
	fmt.Println("Secret Generator for StayBook")
	fmt.Println("===========================================")
	fmt.Println()

	jwtSecret, err := utils.GenerateSecret(32)
	if err != nil {
		log.Fatalf("Failed to generate JWT secret: %v", err)
	}

	adminKey, adminKeyHash, err := utils.GenerateAdminAPIKey()
	if err != nil {
		log.Fatalf("Failed to generate admin key: %v", err)
	}

	fmt.Println("✅ Secrets generated successfully!")
	fmt.Println()
	fmt.Println("Add these to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", jwtSecret)
	fmt.Printf("ADMIN_API_KEY_HASH=%s\n", adminKeyHash)
	fmt.Println()
	fmt.Println("Hand this key to operators (send it as the X-Admin-Key header):")
	fmt.Println()
	fmt.Printf("  %s\n", adminKey)
	fmt.Println()
	fmt.Println("⚠️  The key is shown once. Only its hash is stored.")
	fmt.Println("===========================================")
}
