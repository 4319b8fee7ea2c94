package uploader

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ridgeline-roofing/conversions-cli/pkg/googleads"
	"github.com/ridgeline-roofing/conversions-cli/pkg/msads"
)

type mockGoogleAdsClient struct {
	mock.Mock
}

func (m *mockGoogleAdsClient) UploadCallConversions(ctx context.Context, req googleads.UploadCallConversionsRequest) (*googleads.UploadCallConversionsResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*googleads.UploadCallConversionsResponse), args.Error(1)
}

type mockMsadsClient struct {
	mock.Mock
}

func (m *mockMsadsClient) ApplyOfflineConversions(ctx context.Context, conversions []msads.OfflineConversion) (*msads.ApplyResult, error) {
	args := m.Called(ctx, conversions)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*msads.ApplyResult), args.Error(1)
}
