package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"golang.org/x/oauth2"

	"omochi-bot/internal/sheet"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: sheets-auth-helper <credentials.json>")
	}

	credentialsData, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read credentials file: %v", err)
	}
	credentials, err := sheet.ParseOAuthCredentials(credentialsData)
	if err != nil {
		log.Fatalf("Failed to parse credentials: %v", err)
	}
	config := sheet.OAuthConfig(credentials)

	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)

	fmt.Printf("🔗 Google Sheets OAuth2 Authorization Helper\n")
	fmt.Printf("=============================================\n")
	fmt.Printf("1. Open this URL in your browser:\n")
	fmt.Printf("   %s\n\n", authURL)
	fmt.Printf("2. Authorize access to your spreadsheets\n")
	fmt.Printf("3. Copy the authorization code and enter it below\n\n")
	fmt.Printf("📝 Enter the authorization code: ")

	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		log.Fatalf("Failed to read authorization code: %v", err)
	}

	token, err := config.Exchange(context.Background(), authCode)
	if err != nil {
		log.Fatalf("Failed to exchange code for token: %v", err)
	}

	fmt.Printf("\n✅ Successfully obtained tokens!\n")
	fmt.Printf("=============================================\n")
	fmt.Printf("Add these to your .env file:\n\n")
	fmt.Printf("SHEET_BACKEND=google\n")
	fmt.Printf("GOOGLE_CREDENTIALS_JSON='%s'\n", string(credentialsData))
	if token.RefreshToken == "" {
		fmt.Printf("\n⚠️  No refresh token returned. Revoke the app's access and run again.\n")
		return
	}
	fmt.Printf("GOOGLE_REFRESH_TOKEN='%s'\n", token.RefreshToken)
	fmt.Printf("\nExpires: %v\n", token.Expiry)
}
