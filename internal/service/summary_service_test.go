package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/pedagolab/stepflow-api/internal/models"
	"github.com/pedagolab/stepflow-api/pkg/ai"
)

type summaryFixture struct {
	summaries  *memorySummaryRepo
	jobs       *memoryJobRepo
	activities *stubActivityRepo
	provider   *stubProvider
	service    SummaryService
}

func newSummaryFixture(t *testing.T, cache *redis.Client) *summaryFixture {
	t.Helper()

	fixture := &summaryFixture{
		summaries:  newMemorySummaryRepo(),
		jobs:       newMemoryJobRepo(),
		activities: &stubActivityRepo{activity: models.Activity{ID: 1, Name: "Project Workflow", AIEnabled: true}},
		provider: &stubProvider{responses: []ai.ChatResponse{{
			Content: `{
				"difficulties": ["database modeling"],
				"strengths": ["clear writing"],
				"recommendations": ["review normal forms in class"],
				"general_observation": "Most groups are on track."
			}`,
			PromptTokens:     500,
			CompletionTokens: 90,
		}}},
	}
	fixture.service = NewSummaryService(
		fixture.summaries,
		fixture.jobs,
		fixture.activities,
		&stubResolver{provider: fixture.provider},
		cache,
		testLogger(),
		SummaryConfig{StaleAfter: time.Hour},
	)
	return fixture
}

func (f *summaryFixture) addEligibleJob(t *testing.T, grade float64, feedback string) {
	t.Helper()
	job := models.EvaluationJob{
		ActivityID:   1,
		Step:         6,
		SubmissionID: uint(f.jobs.nextID + 1),
		Status:       models.EvaluationStatusCompleted,
	}
	require.NoError(t, job.SetResult(ai.EvaluationResult{
		Grade:           &grade,
		Feedback:        feedback,
		KeywordsMissing: []string{"indexes"},
		Suggestions:     []string{"add an ER diagram"},
	}))
	require.NoError(t, f.jobs.Create(context.Background(), &job))
}

func TestSummaryServiceGenerate(t *testing.T) {
	fixture := newSummaryFixture(t, nil)
	fixture.addEligibleJob(t, 12, "solid schema")
	fixture.addEligibleJob(t, 15, "well normalized")

	result, err := fixture.service.Generate(context.Background(), 1, 6, false)
	require.NoError(t, err)
	require.False(t, result.NotEnoughData)
	require.False(t, result.CacheHit)
	require.Equal(t, 2, result.EligibleCount)
	require.NotNil(t, result.Summary)
	require.Equal(t, []string{"database modeling"}, result.Summary.Difficulties)
	require.Equal(t, "Most groups are on track.", result.Summary.GeneralObservation)
	require.Equal(t, 590, result.Summary.TokenTotal)
	require.Equal(t, 1, fixture.summaries.upserts)

	// The evidence of both evaluations reached the prompt.
	require.Equal(t, 1, fixture.provider.calls())
	require.Contains(t, fixture.provider.requests[0].User, "solid schema")
	require.Contains(t, fixture.provider.requests[0].User, "well normalized")
	require.Contains(t, fixture.provider.requests[0].User, "indexes")
}

func TestSummaryServiceGenerateFreshRowIsCacheHit(t *testing.T) {
	fixture := newSummaryFixture(t, nil)
	fixture.addEligibleJob(t, 12, "solid schema")

	first, err := fixture.service.Generate(context.Background(), 1, 6, false)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := fixture.service.Generate(context.Background(), 1, 6, false)
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.NotNil(t, second.Summary)

	// Only the first call paid for a provider round trip.
	require.Equal(t, 1, fixture.provider.calls())

	forced, err := fixture.service.Generate(context.Background(), 1, 6, true)
	require.NoError(t, err)
	require.False(t, forced.CacheHit)
	require.Equal(t, 2, fixture.provider.calls())
}

func TestSummaryServiceGenerateNotEnoughData(t *testing.T) {
	fixture := newSummaryFixture(t, nil)

	result, err := fixture.service.Generate(context.Background(), 1, 6, false)
	require.NoError(t, err)
	require.True(t, result.NotEnoughData)
	require.Zero(t, result.EligibleCount)
	require.Equal(t, summaryMinEvaluations, result.Required)
	require.Nil(t, result.Summary)
	require.Zero(t, fixture.provider.calls())
	require.Zero(t, fixture.summaries.upserts)
}

func TestSummaryServiceGenerateSkipsUnreadableResults(t *testing.T) {
	fixture := newSummaryFixture(t, nil)

	// An eligible row whose stored criteria column is corrupt.
	job := models.EvaluationJob{
		ActivityID:   1,
		Step:         6,
		SubmissionID: 1,
		Status:       models.EvaluationStatusCompleted,
		Feedback:     "readable feedback",
		Criteria:     datatypes.JSON(`{not json`),
	}
	require.NoError(t, fixture.jobs.Create(context.Background(), &job))

	result, err := fixture.service.Generate(context.Background(), 1, 6, false)
	require.NoError(t, err)
	require.True(t, result.NotEnoughData)
	require.Zero(t, result.EligibleCount)
	require.Zero(t, fixture.provider.calls())
	require.Zero(t, fixture.summaries.upserts)
}

func TestSummaryServiceGenerateGates(t *testing.T) {
	fixture := newSummaryFixture(t, nil)

	_, err := fixture.service.Generate(context.Background(), 1, 2, false)
	require.ErrorIs(t, err, ErrInvalidStep)

	fixture.activities.activity.AIEnabled = false
	_, err = fixture.service.Generate(context.Background(), 1, 6, false)
	require.ErrorIs(t, err, ErrAIDisabled)
}

func TestSummaryServiceGetBeforeAndAfterGeneration(t *testing.T) {
	fixture := newSummaryFixture(t, nil)
	fixture.addEligibleJob(t, 12, "solid schema")

	status, err := fixture.service.Get(context.Background(), 1, 6)
	require.NoError(t, err)
	require.False(t, status.Available)
	require.Equal(t, 1, status.EligibleCount)
	require.Equal(t, summaryMinEvaluations, status.Required)
	require.Nil(t, status.Summary)

	_, err = fixture.service.Generate(context.Background(), 1, 6, false)
	require.NoError(t, err)

	status, err = fixture.service.Get(context.Background(), 1, 6)
	require.NoError(t, err)
	require.True(t, status.Available)
	require.NotNil(t, status.Summary)
	require.Equal(t, []string{"review normal forms in class"}, status.Summary.Recommendations)
}

func TestSummaryServiceGetUsesRedisCache(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	fixture := newSummaryFixture(t, client)
	fixture.addEligibleJob(t, 12, "solid schema")

	_, err = fixture.service.Generate(context.Background(), 1, 6, false)
	require.NoError(t, err)

	first, err := fixture.service.Get(context.Background(), 1, 6)
	require.NoError(t, err)
	require.True(t, first.Available)

	// Wipe the backing row; the cached view must keep answering.
	fixture.summaries.rows = map[[2]uint]models.AggregateSummary{}

	cached, err := fixture.service.Get(context.Background(), 1, 6)
	require.NoError(t, err)
	require.True(t, cached.Available)
	require.NotNil(t, cached.Summary)
}
