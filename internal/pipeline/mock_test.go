package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ridgeline-roofing/conversions-cli/internal/model"
)

type mockCallSource struct {
	mock.Mock
}

func (m *mockCallSource) FetchQualifyingCalls(ctx context.Context, r model.DateRange, destination string) ([]model.CallRecord, error) {
	args := m.Called(ctx, r, destination)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CallRecord), args.Error(1)
}

type mockLeadSource struct {
	mock.Mock
}

func (m *mockLeadSource) FetchPhoneLeads(ctx context.Context, r model.DateRange) ([]model.LeadRecord, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LeadRecord), args.Error(1)
}

type mockSink struct {
	mock.Mock
	platform string
}

func (m *mockSink) Platform() string { return m.platform }

func (m *mockSink) Upload(ctx context.Context, calls []model.UnmatchedCall, value float64, currency string) (model.UploadResult, error) {
	args := m.Called(ctx, calls, value, currency)
	return args.Get(0).(model.UploadResult), args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	return m.Called(ctx, run).Error(0)
}

func (m *mockStore) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RunRecord), args.Error(1)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}
