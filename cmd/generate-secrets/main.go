package main

import (
	"fmt"
	"log"

	"github.com/lautnusa/speedboat-backend/internal/utils"
)

func main() {
	fmt.Println("===========================================")
	fmt.Println("Secret Generator for SpeedBoat Ticketing")
	fmt.Println("===========================================")
	fmt.Println()

	secrets, err := utils.GenerateAppSecrets()
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("Secrets generated successfully!")
	fmt.Println()
	fmt.Println("Add these to your .env file or deployment secrets:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secrets.JWTAccess)
	fmt.Printf("JWT_REFRESH_SECRET=%s\n", secrets.JWTRefresh)
	fmt.Printf("TICKET_QR_SECRET=%s\n", secrets.TicketQR)
	fmt.Println()
	fmt.Println("IMPORTANT: Keep these secrets safe and never commit them to version control!")
	fmt.Println("Changing TICKET_QR_SECRET invalidates the QR codes of every issued ticket.")
	fmt.Println("===========================================")
}
