// Package memory implements Episodic Memory: a sharded episode table with
// Q-learning feedback and two-phase (cosine recall, Q-rerank) search. The
// Q-learning update is a single-state-bandit formulation rather than full
// multi-step reinforcement learning, a deliberate simplification.
package memory

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/omegaflow/agentcore/internal/models"
)

// Config controls the store's dimension, two-phase search weighting, and
// Q-learning parameters.
type Config struct {
	Dimension      int
	Lambda         float64 // final_score = Lambda*similarity + (1-Lambda)*q
	OversampleK    int
	Threshold      float64
	MaxRecall      int
	LearningRate   float64
	DiscountFactor float64
	DecayEveryN    int
	DecayFactor    float64
}

const shardCount = 16

type shard struct {
	mu       sync.RWMutex
	episodes map[string]*models.Episode
}

// Store is the in-memory Episodic Memory engine. An optional Backend gives
// it durability across restarts.
type Store struct {
	cfg    Config
	shards [shardCount]*shard
	turns  int64
	mu     sync.Mutex // guards turns counter for decay scheduling

	backend Backend
}

// Backend persists episodes durably; the reference implementation is the
// SQLite-backed one in sqlitebackend.go.
type Backend interface {
	Upsert(ep models.Episode) error
	All() ([]models.Episode, error)
}

// NewStore constructs a Store, loading any episodes already present in
// backend (which may be nil).
func NewStore(cfg Config, backend Backend) (*Store, error) {
	if cfg.Dimension <= 0 {
		cfg.Dimension = 256
	}
	if cfg.Lambda <= 0 {
		cfg.Lambda = 0.6
	}
	if cfg.OversampleK <= 0 {
		cfg.OversampleK = 3
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.3
	}
	if cfg.DiscountFactor <= 0 {
		cfg.DiscountFactor = 0.9
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor > 1 {
		cfg.DecayFactor = 0.985
	}

	s := &Store{cfg: cfg, backend: backend}
	for i := range s.shards {
		s.shards[i] = &shard{episodes: make(map[string]*models.Episode)}
	}
	if backend != nil {
		existing, err := backend.All()
		if err != nil {
			return nil, fmt.Errorf("memory: load backend: %w", err)
		}
		for _, ep := range existing {
			s.shardFor(ep.ID).put(ep)
		}
	}
	return s, nil
}

func (s *Store) shardFor(id string) *shard {
	h := fnv32(id)
	return s.shards[h%shardCount]
}

func fnv32(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

func (sh *shard) put(ep models.Episode) {
	sh.mu.Lock()
	sh.episodes[ep.ID] = &ep
	sh.mu.Unlock()
}

func (sh *shard) get(id string) (models.Episode, bool) {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	ep, ok := sh.episodes[id]
	if !ok {
		return models.Episode{}, false
	}
	return *ep, true
}

func (sh *shard) all() []models.Episode {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	out := make([]models.Episode, 0, len(sh.episodes))
	for _, ep := range sh.episodes {
		out = append(out, *ep)
	}
	return out
}

// Store appends or replaces an episode, normalizing and resampling its
// embedding to Dimension if needed, and defaulting QValue to 0.5.
func (s *Store) Store(ep models.Episode) error {
	if ep.ID == "" {
		return fmt.Errorf("memory: episode ID is required")
	}
	ep.IntentEmbed = resampleAndNormalize(ep.IntentEmbed, s.cfg.Dimension)
	if ep.CreatedAtMs == 0 {
		ep.CreatedAtMs = time.Now().UnixMilli()
	}
	if ep.QValue == 0 {
		ep.QValue = 0.5
	}
	s.shardFor(ep.ID).put(ep)
	if s.backend != nil {
		if err := s.backend.Upsert(ep); err != nil {
			return fmt.Errorf("memory: persist episode %s: %w", ep.ID, err)
		}
	}
	return nil
}

// resampleAndNormalize linearly interpolates embed to length dim (if its
// length differs) and L2-normalizes the result.
func resampleAndNormalize(embed []float32, dim int) []float32 {
	if len(embed) == 0 {
		return make([]float32, dim)
	}
	resampled := embed
	if len(embed) != dim {
		resampled = make([]float32, dim)
		for i := 0; i < dim; i++ {
			srcPos := float64(i) * float64(len(embed)-1) / float64(maxInt(dim-1, 1))
			lo := int(math.Floor(srcPos))
			hi := minInt(lo+1, len(embed)-1)
			frac := srcPos - float64(lo)
			resampled[i] = float32(float64(embed[lo])*(1-frac) + float64(embed[hi])*frac)
		}
	}
	var sumSq float64
	for _, v := range resampled {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return resampled
	}
	out := make([]float32, len(resampled))
	for i, v := range resampled {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Update applies the clamped Q-learning update rule to episode-id's q-value.
func (s *Store) Update(episodeID string, reward float64) error {
	sh := s.shardFor(episodeID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	ep, ok := sh.episodes[episodeID]
	if !ok {
		return fmt.Errorf("memory: unknown episode %q", episodeID)
	}
	maxFuture := ep.QValue // no explicit successor state modeled; the
	// current value anchors the update, matching a single-state bandit
	// formulation of the clamped rule.
	q := ep.QValue + s.cfg.LearningRate*(reward+s.cfg.DiscountFactor*maxFuture-ep.QValue)
	ep.QValue = clamp01(q)
	if s.backend != nil {
		_ = s.backend.Upsert(*ep)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RecordFeedback increments episode-id's success/failure counter and
// applies the corresponding Q-update (reward=1 on success, 0 on failure).
func (s *Store) RecordFeedback(episodeID string, success bool) error {
	sh := s.shardFor(episodeID)
	sh.mu.Lock()
	ep, ok := sh.episodes[episodeID]
	if !ok {
		sh.mu.Unlock()
		return fmt.Errorf("memory: unknown episode %q", episodeID)
	}
	if success {
		ep.SuccessCount++
	} else {
		ep.FailureCount++
	}
	sh.mu.Unlock()

	reward := 0.0
	if success {
		reward = 1.0
	}
	return s.Update(episodeID, reward)
}

// Search runs the two-phase search: cosine-similarity recall over
// oversample*k candidates, then a lambda-weighted rerank by learned q-value.
func (s *Store) Search(queryEmbed []float32, k int) []models.RecallCandidate {
	query := resampleAndNormalize(queryEmbed, s.cfg.Dimension)
	n := k * s.cfg.OversampleK
	if n < k {
		n = k
	}

	var all []models.RecallCandidate
	for _, sh := range s.shards {
		for _, ep := range sh.all() {
			sim := cosine(query, ep.IntentEmbed)
			all = append(all, models.RecallCandidate{Episode: ep, Similarity: sim})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Similarity > all[j].Similarity })
	if len(all) > n {
		all = all[:n]
	}

	for i := range all {
		all[i].FinalScore = s.cfg.Lambda*all[i].Similarity + (1-s.cfg.Lambda)*all[i].Episode.QValue
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].FinalScore != all[j].FinalScore {
			return all[i].FinalScore > all[j].FinalScore
		}
		if all[i].Similarity != all[j].Similarity {
			return all[i].Similarity > all[j].Similarity
		}
		return all[i].Episode.CreatedAtMs > all[j].Episode.CreatedAtMs
	})
	if len(all) > k {
		all = all[:k]
	}
	return all
}

func cosine(a, b []float32) float64 {
	n := minInt(len(a), len(b))
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot // both vectors are already L2-normalized, so dot == cosine
}

// Recall builds up to MaxRecall injection blocks for query, filtering to
// final_score >= Threshold.
func (s *Store) Recall(queryEmbed []float32) []models.RecallInjection {
	candidates := s.Search(queryEmbed, s.cfg.MaxRecall)
	out := make([]models.RecallInjection, 0, len(candidates))
	for _, c := range candidates {
		if c.FinalScore < s.cfg.Threshold {
			continue
		}
		out = append(out, models.RecallInjection{
			Category:  models.RecallCategoryEpisodic,
			Payload:   c.Episode.ExperienceText,
			Rationale: fmt.Sprintf("intent=%q score=%.3f", c.Episode.IntentText, c.FinalScore),
		})
	}
	return out
}

// MaybeDecay applies multiplicative q-value decay every DecayEveryN turns.
// Call once per completed turn; it is a no-op on turns that are not
// multiples of DecayEveryN.
func (s *Store) MaybeDecay() {
	s.mu.Lock()
	s.turns++
	due := s.cfg.DecayEveryN > 0 && s.turns%int64(s.cfg.DecayEveryN) == 0
	s.mu.Unlock()
	if !due {
		return
	}
	factor := s.cfg.DecayFactor
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		factor = 0.985
	}
	if factor < 0.5 {
		factor = 0.5
	}
	if factor > 0.9999 {
		factor = 0.9999
	}
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, ep := range sh.episodes {
			ep.QValue = math.Max(0, ep.QValue*factor)
		}
		sh.mu.Unlock()
	}
}
