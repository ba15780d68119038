package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarly-ai/scholarly/pkg/ai"
	"github.com/scholarly-ai/scholarly/pkg/errors"
)

const testDims = 384

type fakeDriver struct {
	mu        sync.Mutex
	calls     int
	inputs    [][]string
	dims      int
	tokensPer int
	// failure 返回非空时本次调用失败
	failure func(call int) error
}

func (d *fakeDriver) Model() string   { return "fake-embedding" }
func (d *fakeDriver) Dimensions() int { return d.dims }

func (d *fakeDriver) Embedding(ctx context.Context, content []string) (ai.EmbeddingResult, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	d.inputs = append(d.inputs, append([]string(nil), content...))
	d.mu.Unlock()

	if d.failure != nil {
		if err := d.failure(call); err != nil {
			return ai.EmbeddingResult{}, err
		}
	}

	res := ai.EmbeddingResult{
		Model: d.Model(),
		Usage: &openai.Usage{PromptTokens: d.tokensPer * len(content), TotalTokens: d.tokensPer * len(content)},
	}
	for _, v := range content {
		vec := make([]float32, d.dims)
		vec[0] = float32(len(v))
		vec[1] = 1
		res.Data = append(res.Data, vec)
	}
	return res, nil
}

func (d *fakeDriver) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func fixedEstimate(perText int64) TokenEstimator {
	return func(content []string) int64 {
		return perText * int64(len(content))
	}
}

func newTestProvider(t *testing.T, driver *fakeDriver, cfg Config, counter *TokenCounter) *Provider {
	cfg.Dimensions = testDims
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	p, err := NewProvider(driver, counter, cfg, WithTokenEstimator(fixedEstimate(10)))
	require.NoError(t, err)
	return p
}

func texts(n int) []string {
	res := make([]string, n)
	for i := range res {
		res[i] = fmt.Sprintf("chunk number %d about cellular respiration", i)
	}
	return res
}

func TestEmbedBatchGroupsByBatchSize(t *testing.T) {
	driver := &fakeDriver{dims: testDims, tokensPer: 3}
	counter := NewTokenCounter(0, nil)
	p := newTestProvider(t, driver, Config{BatchSize: 100}, counter)

	res, err := p.EmbedBatch(context.Background(), texts(250))
	require.NoError(t, err)

	assert.Equal(t, 3, driver.Calls())
	assert.Len(t, driver.inputs[0], 100)
	assert.Len(t, driver.inputs[1], 100)
	assert.Len(t, driver.inputs[2], 50)
	assert.Empty(t, res.Failed)
	assert.Len(t, res.Vectors, 250)
	for _, v := range res.Vectors {
		assert.Len(t, v, testDims)
	}
	// the counter holds the reported usage, not the estimate
	assert.Equal(t, int64(250*3), counter.Used())
}

func TestEmbedIsIdempotent(t *testing.T) {
	driver := &fakeDriver{dims: testDims, tokensPer: 5}
	counter := NewTokenCounter(0, nil)
	p := newTestProvider(t, driver, Config{}, counter)

	first, err := p.Embed(context.Background(), "Mitosis has four phases")
	require.NoError(t, err)
	second, err := p.Embed(context.Background(), "  Mitosis   has four phases\n")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, driver.Calls())
	assert.Equal(t, int64(5), counter.Used())

	// cached vectors are copies
	first[0] = -1
	third, err := p.Embed(context.Background(), "Mitosis has four phases")
	require.NoError(t, err)
	assert.NotEqual(t, float32(-1), third[0])
}

func TestEmbedConcurrentMissesShareOneCall(t *testing.T) {
	release := make(chan struct{})
	driver := &fakeDriver{dims: testDims, tokensPer: 2, failure: func(call int) error {
		<-release
		return nil
	}}
	counter := NewTokenCounter(0, nil)
	p := newTestProvider(t, driver, Config{}, counter)

	var wg sync.WaitGroup
	results := make([][]float32, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := p.Embed(context.Background(), "Osmosis moves water across membranes")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, driver.Calls())
	assert.Equal(t, int64(2), counter.Used())
	for _, v := range results[1:] {
		assert.Equal(t, results[0], v)
	}
}

func TestEmbedConcurrentFailureGivesEachCallerOwnError(t *testing.T) {
	release := make(chan struct{})
	driver := &fakeDriver{dims: testDims, failure: func(call int) error {
		<-release
		return &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "invalid api key"}
	}}
	p := newTestProvider(t, driver, Config{}, nil)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Embed(context.Background(), "Diffusion follows the concentration gradient")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	seen := map[*errors.CustomizedError]bool{}
	for _, err := range errs {
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrEmbeddingUnavailable))
		ce, ok := errors.As(err)
		require.True(t, ok)
		assert.False(t, seen[ce])
		seen[ce] = true

		embedFrames := 0
		for _, frame := range ce.Traces() {
			if frame == "EmbeddingProvider.Embed" {
				embedFrames++
			}
		}
		assert.Equal(t, 1, embedFrames)
	}
}

func TestEmbedBatchUsesCacheAndDeduplicates(t *testing.T) {
	driver := &fakeDriver{dims: testDims, tokensPer: 1}
	p := newTestProvider(t, driver, Config{}, nil)

	_, err := p.Embed(context.Background(), "alpha")
	require.NoError(t, err)

	res, err := p.EmbedBatch(context.Background(), []string{"alpha", "beta", "beta", "gamma"})
	require.NoError(t, err)

	assert.Equal(t, 2, driver.Calls())
	assert.Equal(t, []string{"beta", "gamma"}, driver.inputs[1])
	assert.Equal(t, res.Vectors[1], res.Vectors[2])
	assert.NotNil(t, res.Vectors[0])
}

func TestEmbedBatchQuotaExceededMidBatch(t *testing.T) {
	driver := &fakeDriver{dims: testDims, tokensPer: 10}
	counter := NewTokenCounter(25, nil)
	p := newTestProvider(t, driver, Config{BatchSize: 2}, counter)

	res, err := p.EmbedBatch(context.Background(), texts(5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrQuotaExceeded))

	require.NotNil(t, res)
	assert.Equal(t, 1, driver.Calls())
	assert.NotNil(t, res.Vectors[0])
	assert.NotNil(t, res.Vectors[1])
	assert.Nil(t, res.Vectors[2])
	assert.Equal(t, []int{2, 3, 4}, res.Failed)
	assert.Equal(t, int64(20), counter.Used())
}

func TestEmbedQuotaCheckedBeforeCall(t *testing.T) {
	driver := &fakeDriver{dims: testDims, tokensPer: 10}
	counter := NewTokenCounter(5, nil)
	p := newTestProvider(t, driver, Config{}, counter)

	_, err := p.Embed(context.Background(), "photosynthesis")
	assert.True(t, errors.Is(err, errors.ErrQuotaExceeded))
	assert.Equal(t, 0, driver.Calls())
	assert.Equal(t, int64(0), counter.Used())
}

func TestEmbedRetriesTransientErrors(t *testing.T) {
	driver := &fakeDriver{dims: testDims, tokensPer: 2, failure: func(call int) error {
		if call < 3 {
			return &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
		}
		return nil
	}}
	counter := NewTokenCounter(100, nil)
	p := newTestProvider(t, driver, Config{}, counter)

	vec, err := p.Embed(context.Background(), "osmosis")
	require.NoError(t, err)
	assert.Len(t, vec, testDims)
	assert.Equal(t, 3, driver.Calls())
	assert.Equal(t, int64(2), counter.Used())
}

func TestEmbedNegativeMaxRetriesDisablesRetry(t *testing.T) {
	driver := &fakeDriver{dims: testDims, failure: func(call int) error {
		return &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
	}}
	p := newTestProvider(t, driver, Config{MaxRetries: -1}, nil)

	_, err := p.Embed(context.Background(), "osmosis")
	assert.True(t, errors.Is(err, errors.ErrEmbeddingUnavailable))
	assert.Equal(t, 1, driver.Calls())
}

func TestEmbedUnavailableAfterRetries(t *testing.T) {
	driver := &fakeDriver{dims: testDims, failure: func(call int) error {
		return &openai.APIError{HTTPStatusCode: http.StatusBadGateway, Message: "bad gateway"}
	}}
	counter := NewTokenCounter(100, nil)
	p := newTestProvider(t, driver, Config{MaxRetries: 3}, counter)

	_, err := p.Embed(context.Background(), "osmosis")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEmbeddingUnavailable))
	assert.Equal(t, 4, driver.Calls())
	// reservation released
	assert.Equal(t, int64(0), counter.Used())
}

func TestEmbedPermanentErrorIsNotRetried(t *testing.T) {
	driver := &fakeDriver{dims: testDims, failure: func(call int) error {
		return &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "invalid api key"}
	}}
	p := newTestProvider(t, driver, Config{}, nil)

	_, err := p.Embed(context.Background(), "osmosis")
	assert.True(t, errors.Is(err, errors.ErrEmbeddingUnavailable))
	assert.Equal(t, 1, driver.Calls())
}

func TestEmbedValidation(t *testing.T) {
	driver := &fakeDriver{dims: testDims}
	p := newTestProvider(t, driver, Config{MaxInputLength: 10}, nil)

	_, err := p.Embed(context.Background(), "   ")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = p.Embed(context.Background(), "this text is longer than ten runes")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	res, err := p.EmbedBatch(context.Background(), []string{"ok", ""})
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	ce, _ := errors.As(err)
	assert.Equal(t, 1, ce.Data()["index"])

	assert.Equal(t, 0, driver.Calls())
}

func TestEmbedDimensionMismatch(t *testing.T) {
	driver := &fakeDriver{dims: 768, tokensPer: 1}
	p := newTestProvider(t, driver, Config{}, nil)

	_, err := p.Embed(context.Background(), "enzyme")
	assert.True(t, errors.Is(err, errors.ErrEmbeddingUnavailable))
}

func TestPing(t *testing.T) {
	driver := &fakeDriver{dims: testDims, tokensPer: 1}
	counter := NewTokenCounter(0, nil)
	p := newTestProvider(t, driver, Config{}, counter)

	assert.NoError(t, p.Ping(context.Background()))
	assert.NoError(t, p.Ping(context.Background()))
	assert.Equal(t, 2, driver.Calls())
	assert.Equal(t, int64(2), counter.Used())

	failing := &fakeDriver{dims: testDims, failure: func(int) error { return fmt.Errorf("dial tcp: refused") }}
	p = newTestProvider(t, failing, Config{}, nil)
	assert.True(t, errors.Is(p.Ping(context.Background()), errors.ErrEmbeddingUnavailable))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.WithDefaults().Validate())
	assert.Error(t, Config{Provider: "azure"}.WithDefaults().Validate())
	assert.Error(t, Config{Dimensions: 1024}.WithDefaults().Validate())
	assert.Error(t, Config{BatchSize: -1}.WithDefaults().Validate())
}
