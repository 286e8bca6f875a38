package pipeline

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/config"
	"github.com/TobiSchelling/eventscout/internal/database"
	"github.com/TobiSchelling/eventscout/internal/deliver"
	"github.com/TobiSchelling/eventscout/internal/event"
	"github.com/TobiSchelling/eventscout/internal/llm"
	"github.com/TobiSchelling/eventscout/internal/metrics"
	"github.com/TobiSchelling/eventscout/internal/planner"
	"github.com/TobiSchelling/eventscout/internal/research"
	"github.com/TobiSchelling/eventscout/internal/review"
	"github.com/TobiSchelling/eventscout/internal/search"
	"github.com/TobiSchelling/eventscout/internal/serp"
	"github.com/TobiSchelling/eventscout/internal/synthesize"
)

const (
	serpTimeout    = 20 * time.Second
	contentTimeout = 15 * time.Second
	researchTTL    = 24 * time.Hour
)

// Build wires every collaborator from cfg. Secrets come from the
// environment variables the config names. db may be nil, in which case no
// stored interests are used; otherwise they are read fresh on each review.
// reg may be nil to skip metrics.
func Build(cfg *config.Config, db *database.DB, reg prometheus.Registerer) (*Pipeline, error) {
	secrets := cfg.ResolveSecrets(os.Getenv)

	provider := llm.CreateProvider(llm.Settings{
		Provider:       cfg.LLM.Provider,
		Model:          cfg.LLM.Model,
		OllamaURL:      cfg.LLM.OllamaURL,
		OpenAIModel:    cfg.LLM.OpenAIModel,
		OpenAIKey:      secrets.OpenAIKey,
		AnthropicModel: cfg.LLM.AnthropicModel,
		AnthropicKey:   secrets.AnthropicKey,
	})
	serpClient := serp.New(secrets.SerpAPIKey, serpTimeout)

	var loadInterests func() ([]event.Interest, error)
	if db != nil {
		loadInterests = db.ActiveEventInterests
	}

	notifier, err := deliver.New(cfg.Delivery, secrets)
	if err != nil {
		return nil, fmt.Errorf("configuring delivery: %w", err)
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	synth := synthesize.NewSynthesizer(provider)
	if cfg.LLM.MaxTokens > 0 {
		synth.MaxTokens = cfg.LLM.MaxTokens
	}

	opts := []planner.Option{
		planner.WithReviewConcurrency(cfg.Review.MaxConcurrent),
		planner.WithMaxIterations(cfg.Planner.MaxIterations),
		planner.WithMetrics(m),
	}
	if rp := ResearchPipeline(cfg, serpClient, provider); rp != nil {
		opts = append(opts, planner.WithResearch(rp))
	}

	pl := planner.New(
		SearchAgents(cfg, secrets),
		ReviewAgents(cfg, serpClient, provider, loadInterests),
		synth,
		opts...,
	)
	return New(cfg, db, pl, notifier, m), nil
}

// SearchAgents creates one agent per enabled source. Sources without a key
// are still included and report the missing key as a failed search.
func SearchAgents(cfg *config.Config, secrets config.Secrets) []agent.SearchAgent {
	loc := cfg.TimeLocation()
	src := cfg.Sources

	var agents []agent.SearchAgent
	if src.Ticketmaster.Enabled {
		agents = append(agents, search.NewTicketmasterAgent(secrets.TicketmasterKey,
			cfg.Location.City, cfg.Location.StateCode, src.Ticketmaster.DaysAhead))
	}
	if src.Meetup.Enabled {
		agents = append(agents, search.NewMeetupAgent(secrets.MeetupKey, src.Meetup.Query))
	}
	if src.SerpAPI.Enabled {
		agents = append(agents, search.NewSerpAPIAgent(secrets.SerpAPIKey, src.SerpAPI.Query, loc))
	}
	for _, f := range src.Feeds {
		agents = append(agents, search.NewFeedAgent(f.URL, f.Name, loc))
	}
	for _, p := range src.Pages {
		agents = append(agents, search.NewPageAgent(p.Name, p.URL, search.Selectors{
			Item:     p.Item,
			Title:    p.Title,
			Link:     p.Link,
			When:     p.When,
			Location: p.Location,
			Summary:  p.Summary,
		}, loc))
	}
	return agents
}

// ReviewAgents creates the review swarm enabled in cfg. loadInterests, when
// non-nil, is consulted on every review so interest edits reach later runs.
func ReviewAgents(cfg *config.Config, serpClient *serp.Client, provider llm.Provider, loadInterests func() ([]event.Interest, error)) []agent.ReviewAgent {
	var agents []agent.ReviewAgent
	if cfg.Review.WebSearch {
		agents = append(agents, review.NewWebSearchEnricher(serpClient, provider, cfg.Location.City))
	}
	if cfg.Review.Content {
		agents = append(agents, review.NewContentEnricher(provider, contentTimeout))
	}
	if cfg.Review.Relevance {
		agents = append(agents, &review.RelevanceScorer{Load: loadInterests})
	}
	if cfg.Review.DateWindowDays > 0 {
		agents = append(agents, review.NewDateVerifier(cfg.Review.DateWindowDays, cfg.TimeLocation()))
	}
	return agents
}

// ResearchPipeline builds the research pipeline, or nil when there is no
// LLM to drive it or no usable backend.
func ResearchPipeline(cfg *config.Config, serpClient *serp.Client, provider llm.Provider) *research.Pipeline {
	if provider == nil {
		return nil
	}

	var backends []research.Researcher
	for _, name := range cfg.Research.Backends {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "web":
			if !serpClient.Configured() {
				log.Printf("Research backend web skipped: no SerpAPI key")
				continue
			}
			backends = append(backends, research.NewWebResearcher(serpClient))
		case "wikipedia":
			backends = append(backends, research.NewWikipediaResearcher())
		default:
			log.Printf("Unknown research backend %q, skipping", name)
		}
	}
	if len(backends) == 0 {
		return nil
	}

	var researcher research.Researcher = research.NewChainResearcher(backends...)
	if cfg.Research.CacheSize > 0 {
		researcher = research.NewCachedResearcher(researcher, cfg.Research.CacheSize, researchTTL)
	}

	p := research.NewPipeline(
		research.NewLLMEntityExtractor(provider, cfg.Research.MaxEntities),
		research.NewLLMQueryGenerator(provider, cfg.Research.MaxQueries),
		researcher,
		research.NewKnowledgeSynthesizer(provider),
	)
	if cfg.Research.MaxConcurrent > 0 {
		p.MaxConcurrent = cfg.Research.MaxConcurrent
	}
	return p
}
