package steps

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/channel"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/store"
	"github.com/sells-group/leadflow/pkg/apify"
	"github.com/sells-group/leadflow/pkg/apollo"
	"github.com/sells-group/leadflow/pkg/heygen"
	"github.com/sells-group/leadflow/pkg/moengage"
	"github.com/sells-group/leadflow/pkg/postmark"
	"github.com/sells-group/leadflow/pkg/slack"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func testChannel(t *testing.T, id string) *channel.Profile {
	t.Helper()
	profiles, err := channel.BuiltIn()
	require.NoError(t, err)
	for _, p := range profiles {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("no built-in channel %s", id)
	return nil
}

// newTestRC returns an initialized run context over a file store in a
// temp dir.
func newTestRC(t *testing.T, channelID string, opts ...pipeline.Option) (*pipeline.RunContext, *store.FileStore) {
	t.Helper()
	dir := t.TempDir()
	st := store.NewFileStore(dir, "")
	opts = append([]pipeline.Option{pipeline.WithNow(func() time.Time { return testNow })}, opts...)
	rc := pipeline.NewRunContext(testChannel(t, channelID), st, opts...)
	require.NoError(t, rc.Init(context.Background()))
	rc.SetMeta(pipeline.MetaRunID, "run-1")
	return rc, st
}

func build(t *testing.T, rc *pipeline.RunContext, deps Deps, desc pipeline.Descriptor) pipeline.Step {
	t.Helper()
	if desc.ID == "" {
		desc.ID = desc.Kind
	}
	s, err := NewRegistry(deps).Build(desc, rc)
	require.NoError(t, err)
	return s
}

type mockApollo struct{ mock.Mock }

func (m *mockApollo) SearchPeople(ctx context.Context, req apollo.SearchRequest) (*apollo.SearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apollo.SearchResponse), args.Error(1)
}

func (m *mockApollo) SearchIntent(ctx context.Context, req apollo.SearchRequest) (*apollo.SearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apollo.SearchResponse), args.Error(1)
}

func (m *mockApollo) EnrichPerson(ctx context.Context, req apollo.MatchRequest) (*apollo.MatchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apollo.MatchResponse), args.Error(1)
}

func (m *mockApollo) BulkEnrich(ctx context.Context, people []apollo.MatchRequest) (*apollo.BulkMatchResponse, error) {
	args := m.Called(ctx, people)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apollo.BulkMatchResponse), args.Error(1)
}

func (m *mockApollo) EnrichOrganization(ctx context.Context, domain string) (*apollo.OrganizationResponse, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apollo.OrganizationResponse), args.Error(1)
}

type mockApify struct{ mock.Mock }

func (m *mockApify) StartRun(ctx context.Context, actorID string, input any, waitSecs int) (*apify.Run, error) {
	args := m.Called(ctx, actorID, input, waitSecs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apify.Run), args.Error(1)
}

func (m *mockApify) GetRun(ctx context.Context, runID string) (*apify.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apify.Run), args.Error(1)
}

func (m *mockApify) DatasetItems(ctx context.Context, datasetID string, limit int) ([]map[string]any, error) {
	args := m.Called(ctx, datasetID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}

type mockMoEngage struct{ mock.Mock }

func (m *mockMoEngage) UpsertCustomer(ctx context.Context, c moengage.Customer) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockMoEngage) TrackEvent(ctx context.Context, e moengage.Event) error {
	return m.Called(ctx, e).Error(0)
}

type mockPostmark struct{ mock.Mock }

func (m *mockPostmark) Send(ctx context.Context, e postmark.Email) (string, error) {
	args := m.Called(ctx, e)
	return args.String(0), args.Error(1)
}

type mockSlack struct{ mock.Mock }

func (m *mockSlack) Post(ctx context.Context, msg slack.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type mockHeyGen struct{ mock.Mock }

func (m *mockHeyGen) Generate(ctx context.Context, req heygen.VideoRequest) (*heygen.Video, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*heygen.Video), args.Error(1)
}

func (m *mockHeyGen) Status(ctx context.Context, videoID string) (*heygen.Video, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*heygen.Video), args.Error(1)
}

type mockNotion struct{ mock.Mock }

func (m *mockNotion) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotion) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

type mockSalesforce struct{ mock.Mock }

func (m *mockSalesforce) Query(ctx context.Context, soql string, out any) error {
	return m.Called(ctx, soql, out).Error(0)
}

func (m *mockSalesforce) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	args := m.Called(ctx, sObjectName, record)
	return args.String(0), args.Error(1)
}

func (m *mockSalesforce) UpdateOne(ctx context.Context, sObjectName, id string, fields map[string]any) error {
	return m.Called(ctx, sObjectName, id, fields).Error(0)
}

type mockWriter struct{ mock.Mock }

func (m *mockWriter) Name() string { return "mock" }

func (m *mockWriter) Generate(ctx context.Context, system, prompt string) (string, error) {
	args := m.Called(ctx, system, prompt)
	return args.String(0), args.Error(1)
}
