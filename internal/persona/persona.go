package persona

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Profile is the resolved agent persona used for greetings, refusal
// fallbacks, and the system prompt fragment.
type Profile struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	Greeting     string `json:"greeting"`
	SystemPrompt string `json:"system_prompt"`
}

// DefaultProfile is used whenever the config collaborator is unreachable or
// returns an unusable payload. Persona resolution is strictly best-effort.
func DefaultProfile() Profile {
	return Profile{
		ID:           "default",
		DisplayName:  "Sonara",
		Greeting:     "Hi, I'm Sonara. How can I help you today?",
		SystemPrompt: "You are a helpful voice assistant. Keep answers short and conversational.",
	}
}

// Resolver fetches a persona profile. Implementations never return an error;
// failures fall back to DefaultProfile.
type Resolver interface {
	Resolve(ctx context.Context, personaID string) Profile
}

// StaticResolver returns a fixed profile. Used when no config service is set
// and in tests.
type StaticResolver struct {
	Profile Profile
}

func (r StaticResolver) Resolve(context.Context, string) Profile {
	if strings.TrimSpace(r.Profile.DisplayName) == "" {
		return DefaultProfile()
	}
	return r.Profile
}

// HTTPResolver looks up persona configuration over HTTP.
type HTTPResolver struct {
	url    string
	client *http.Client
}

const personaLookupTimeout = 3 * time.Second

func NewHTTPResolver(url string) *HTTPResolver {
	return &HTTPResolver{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: personaLookupTimeout},
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, personaID string) Profile {
	fallback := DefaultProfile()
	if r.url == "" {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, personaLookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url+"?id="+personaID, nil)
	if err != nil {
		return fallback
	}
	res, err := r.client.Do(req)
	if err != nil {
		log.Printf("persona lookup failed, using defaults: %v", err)
		return fallback
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		log.Printf("persona lookup status %d, using defaults", res.StatusCode)
		return fallback
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return fallback
	}
	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		log.Printf("persona payload unusable, using defaults: %v", err)
		return fallback
	}
	if strings.TrimSpace(profile.DisplayName) == "" {
		return fallback
	}
	if profile.ID == "" {
		profile.ID = personaID
	}
	if strings.TrimSpace(profile.Greeting) == "" {
		profile.Greeting = fallback.Greeting
	}
	if strings.TrimSpace(profile.SystemPrompt) == "" {
		profile.SystemPrompt = fallback.SystemPrompt
	}
	return profile
}
