package steps

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/soulprintlabs/soulprint-backend/internal/platform/openai"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

// fakeAI implements openai.Client with pluggable behavior per method.
type fakeAI struct {
	generateTextFn func(system, user string) (string, error)
	generateJSONFn func(system, user, schemaName string) (json.RawMessage, error)
	embedFn        func(inputs []string) ([][]float32, error)

	textCalls  int32
	jsonCalls  int32
	embedCalls int32

	mu          sync.Mutex
	userPrompts []string
	embedInputs []string
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string, opts openai.Options) (string, error) {
	atomic.AddInt32(&f.textCalls, 1)
	f.mu.Lock()
	f.userPrompts = append(f.userPrompts, user)
	f.mu.Unlock()
	if f.generateTextFn == nil {
		return "", nil
	}
	return f.generateTextFn(system, user)
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any, opts openai.Options) (json.RawMessage, error) {
	atomic.AddInt32(&f.jsonCalls, 1)
	f.mu.Lock()
	f.userPrompts = append(f.userPrompts, user)
	f.mu.Unlock()
	if f.generateJSONFn == nil {
		return json.RawMessage(`{}`), nil
	}
	return f.generateJSONFn(system, user, schemaName)
}

func (f *fakeAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	atomic.AddInt32(&f.embedCalls, 1)
	f.mu.Lock()
	f.embedInputs = append(f.embedInputs, inputs...)
	f.mu.Unlock()
	if f.embedFn == nil {
		out := make([][]float32, len(inputs))
		for i := range out {
			out[i] = []float32{0.1, 0.2}
		}
		return out, nil
	}
	return f.embedFn(inputs)
}

// fakeProfiles records writes without a database.
type fakeProfiles struct {
	patchErr   error
	replaceErr error

	patches      []map[string]interface{}
	replacedWith map[string]datatypes.JSON
	combined     string
	replaceCalls int
}

func (f *fakeProfiles) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserProfile, error) {
	return nil, nil
}

func (f *fakeProfiles) Patch(ctx context.Context, tx *gorm.DB, userID uuid.UUID, updates map[string]interface{}) error {
	if f.patchErr != nil {
		return f.patchErr
	}
	f.patches = append(f.patches, updates)
	return nil
}

func (f *fakeProfiles) ReplaceSections(ctx context.Context, tx *gorm.DB, userID uuid.UUID, sections map[string]datatypes.JSON, combinedText string) error {
	f.replaceCalls++
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replacedWith = sections
	f.combined = combinedText
	return nil
}

// fakeChunks records chunk writes without a database.
type fakeChunks struct {
	createErr error
	updateErr error
	deleteErr error

	mu         sync.Mutex
	created    []*types.ConversationChunk
	embeddings map[uuid.UUID][]float32
	deletedFor []uuid.UUID
}

func (f *fakeChunks) CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*types.ConversationChunk) ([]*types.ConversationChunk, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	f.created = append(f.created, chunks...)
	f.mu.Unlock()
	return chunks, nil
}

func (f *fakeChunks) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ConversationChunk, error) {
	return nil, nil
}

func (f *fakeChunks) GetMissingEmbeddings(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.ConversationChunk, error) {
	return nil, nil
}

func (f *fakeChunks) UpdateEmbedding(ctx context.Context, tx *gorm.DB, chunkID uuid.UUID, vector []float32) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	if f.embeddings == nil {
		f.embeddings = map[uuid.UUID][]float32{}
	}
	f.embeddings[chunkID] = vector
	f.mu.Unlock()
	return nil
}

func (f *fakeChunks) DeleteAllForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	f.deletedFor = append(f.deletedFor, userID)
	f.mu.Unlock()
	return nil
}
