package salesforce

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct{ mock.Mock }

func (m *mockClient) Query(ctx context.Context, soql string, out any) error {
	args := m.Called(ctx, soql, out)
	if fn, ok := args.Get(0).(func(any)); ok {
		fn(out)
		return nil
	}
	return args.Error(1)
}

func (m *mockClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	args := m.Called(ctx, sObjectName, record)
	return args.String(0), args.Error(1)
}

func (m *mockClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	args := m.Called(ctx, sObjectName, id, fields)
	return args.Error(0)
}

func noLeads(any) {}

func TestUpsertLead_Creates(t *testing.T) {
	c := &mockClient{}
	fields := map[string]any{"Email": "jane@acme.com", "LastName": "Doe", "Company": "Acme"}
	c.On("Query", mock.Anything, mock.MatchedBy(func(q string) bool {
		return assert.ObjectsAreEqual("SELECT Id, Email, Company, Status FROM Lead WHERE Email = 'jane@acme.com' LIMIT 1", q)
	}), mock.Anything).Return(noLeads, nil)
	c.On("InsertOne", mock.Anything, "Lead", fields).Return("00Qnew", nil)

	id, created, err := UpsertLead(context.Background(), c, fields)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "00Qnew", id)
	c.AssertExpectations(t)
}

func TestUpsertLead_UpdatesExisting(t *testing.T) {
	c := &mockClient{}
	fields := map[string]any{"Email": "jane@acme.com", "Title": "CFO"}
	c.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(func(out any) {
		*out.(*[]Lead) = []Lead{{ID: "00Qold", Email: "jane@acme.com"}}
	}, nil)
	c.On("UpdateOne", mock.Anything, "Lead", "00Qold", fields).Return(nil)

	id, created, err := UpsertLead(context.Background(), c, fields)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "00Qold", id)
	c.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpsertLead_RequiresCompany(t *testing.T) {
	c := &mockClient{}
	_, _, err := UpsertLead(context.Background(), c, map[string]any{"LastName": "Doe"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Company is required")
}

func TestUpsertLead_QueryError(t *testing.T) {
	c := &mockClient{}
	c.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	_, _, err := UpsertLead(context.Background(), c, map[string]any{"Email": "x@y.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find lead")
}

func TestEscapeSoql(t *testing.T) {
	assert.Equal(t, `o\'brien@acme.com`, escapeSoql("o'brien@acme.com"))
}
