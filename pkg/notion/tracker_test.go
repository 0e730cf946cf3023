package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/apply-cli/internal/model"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestMockClientSatisfiesInterface(t *testing.T) {
	t.Parallel()
	var _ Client = (*MockClient)(nil)
}

func fingerprintFilterMatcher(fp string) func(*notionapi.DatabaseQueryRequest) bool {
	return func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		if !ok {
			return false
		}
		return pf.Property == propFingerprint && pf.RichText != nil && pf.RichText.Equals == fp
	}
}

func TestFindPageByFingerprint_Found(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(fingerprintFilterMatcher("fp-1"))).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: "page-1"}},
		}, nil).Once()

	id, err := FindPageByFingerprint(ctx, mc, "db-1", "fp-1")
	assert.NoError(t, err)
	assert.Equal(t, "page-1", id)
	mc.AssertExpectations(t)
}

func TestFindPageByFingerprint_Missing(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()

	id, err := FindPageByFingerprint(ctx, mc, "db-1", "fp-unknown")
	assert.NoError(t, err)
	assert.Empty(t, id)
	mc.AssertExpectations(t)
}

func TestUpsertOpportunity_CreatesWhenAbsent(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		return req.Parent.DatabaseID == notionapi.DatabaseID("db-1")
	})).Return(&notionapi.Page{ID: "page-new"}, nil).Once()

	op := model.Opportunity{
		Fingerprint: "fp-1",
		Title:       "Backend Engineer",
		Company:     "Acme",
		Stage:       model.StageSubmitted,
		URL:         "https://example.com/jobs/1",
	}
	assert.NoError(t, UpsertOpportunity(ctx, mc, "db-1", op))
	mc.AssertExpectations(t)
}

func TestUpsertOpportunity_UpdatesWhenPresent(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: "page-1"}},
		}, nil).Once()
	mc.On("UpdatePage", ctx, "page-1", mock.Anything).
		Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	op := model.Opportunity{Fingerprint: "fp-1", Title: "Backend Engineer", Stage: model.StageWithdrawn}
	assert.NoError(t, UpsertOpportunity(ctx, mc, "db-1", op))
	mc.AssertExpectations(t)
}

func TestQueryAll_Paginates(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}, {ID: "p2"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("cursor-1"),
	}, nil).Once()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("cursor-1")
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "p3"}},
	}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.NoError(t, err)
	assert.Len(t, pages, 3)
	mc.AssertExpectations(t)
}
