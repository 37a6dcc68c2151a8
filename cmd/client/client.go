package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

type claimRequest struct {
	UserID   string   `json:"user_id"`
	OfferIDs []string `json:"offer_ids"`
}

type claimResponse struct {
	GrantedOfferIDs []string `json:"granted_offer_ids"`
}

func main() {
	var (
		addr   = flag.String("addr", "http://localhost:8082", "claims api address")
		users  = flag.Int("users", 1000, "size of the synthetic user pool")
		offers = flag.String("offers", "offer-a,offer-b,offer-c", "comma separated offer ids to claim")
	)
	flag.Parse()

	offerIDs := splitOffers(*offers)
	client := &http.Client{Timeout: 5 * time.Second}

	for {
		userID := fmt.Sprintf("user-%04d", rand.Intn(*users))
		MakeCall(client, *addr, userID, offerIDs)
	}
}

func MakeCall(client *http.Client, addr, userID string, offerIDs []string) {
	defer func(begin time.Time) {
		fmt.Println("took > ", time.Since(begin))
	}(time.Now())

	body, err := json.Marshal(claimRequest{UserID: userID, OfferIDs: offerIDs})
	if err != nil {
		log.Fatalf("could not marshal request: %s", err)
	}

	resp, err := client.Post(addr+"/v1/claims", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("request failed: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Printf("status %d: %s\n", resp.StatusCode, b)
		return
	}

	var res claimResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		log.Fatalf("could not decode response: %s", err)
	}

	fmt.Printf("user %s granted %d/%d offers: %v\n", userID, len(res.GrantedOfferIDs), len(offerIDs), res.GrantedOfferIDs)
}

func splitOffers(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
