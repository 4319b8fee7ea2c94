package adapter

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ridgeline-roofing/conversions-cli/pkg/twilio"
	"github.com/ridgeline-roofing/conversions-cli/pkg/whatconverts"
)

// --- Twilio Mock ---

type mockTwilioClient struct {
	mock.Mock
}

func (m *mockTwilioClient) ListCalls(ctx context.Context, params twilio.ListCallsParams) ([]twilio.Call, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]twilio.Call), args.Error(1)
}

// --- WhatConverts Mock ---

type mockWhatConvertsClient struct {
	mock.Mock
}

func (m *mockWhatConvertsClient) ListLeads(ctx context.Context, params whatconverts.ListLeadsParams) ([]whatconverts.Lead, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]whatconverts.Lead), args.Error(1)
}
