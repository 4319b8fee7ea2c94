package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgeline-roofing/conversions-cli/internal/adapter"
	"github.com/ridgeline-roofing/conversions-cli/internal/db"
	"github.com/ridgeline-roofing/conversions-cli/internal/phone"
	"github.com/ridgeline-roofing/conversions-cli/internal/pipeline"
	"github.com/ridgeline-roofing/conversions-cli/internal/store"
	"github.com/ridgeline-roofing/conversions-cli/internal/uploader"
	"github.com/ridgeline-roofing/conversions-cli/pkg/googleads"
	"github.com/ridgeline-roofing/conversions-cli/pkg/msads"
	"github.com/ridgeline-roofing/conversions-cli/pkg/twilio"
	"github.com/ridgeline-roofing/conversions-cli/pkg/whatconverts"
)

// errPartialUpload marks a run that finished but had at least one conversion
// rejected; main maps it to exit code 2 so schedulers can tell "re-check the
// failed calls" apart from "the run never happened".
var errPartialUpload = eris.New("one or more conversion uploads failed")

var (
	uploadDate    string
	uploadDays    int
	uploadDryRun  bool
	uploadVerbose bool
	uploadFormat  string
)

func runUpload(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	params := pipeline.Params{
		Days:    uploadDays,
		DryRun:  uploadDryRun,
		Verbose: uploadVerbose,
	}
	if uploadDate != "" {
		date, err := time.ParseInLocation("2006-01-02", uploadDate, time.UTC)
		if err != nil {
			return eris.Wrapf(err, "invalid --date %q, want YYYY-MM-DD", uploadDate)
		}
		params.Date = date
	}

	if !uploadDryRun {
		if err := cfg.RequireGoogleAds(); err != nil {
			return err
		}
	}

	norm := &phone.Normalizer{
		CountryCode:   cfg.Phone.CountryCode,
		TrunkPrefix:   cfg.Phone.TrunkPrefix,
		NationalMin:   cfg.Phone.NationalMin,
		NationalMax:   cfg.Phone.NationalMax,
		MinFullLength: cfg.Phone.MinFullLength,
	}

	callSource := adapter.NewTwilioCallSource(
		twilio.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken,
			twilio.WithRateLimit(cfg.Twilio.RateLimit)),
		norm,
		cfg.Reconcile.MinCallSeconds,
	)

	wcOpts := []whatconverts.Option{whatconverts.WithPageSize(cfg.WhatConverts.PageSize)}
	if cfg.WhatConverts.BaseURL != "" {
		wcOpts = append(wcOpts, whatconverts.WithBaseURL(cfg.WhatConverts.BaseURL))
	}
	leadSource := adapter.NewWhatConvertsLeadSource(
		whatconverts.NewClient(cfg.WhatConverts.Token, cfg.WhatConverts.Secret, wcOpts...),
		norm,
	)

	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("run history disabled", zap.Error(err))
	} else {
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			zap.L().Warn("run history disabled", zap.Error(err))
			st = nil
		}
	}

	p := pipeline.New(cfg, norm, callSource, leadSource, buildSinks(), st)

	outcome, err := p.Run(ctx, params)
	if err != nil {
		return err
	}

	report, err := pipeline.FormatReport(outcome, uploadFormat, uploadVerbose)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, report)

	if outcome.Run.TotalFailed() > 0 {
		return errPartialUpload
	}
	return nil
}

// buildSinks constructs the platform sinks in upload order: the caller-ID
// keyed primary platform first, then the click-ID keyed secondary one.
func buildSinks() []uploader.ConversionSink {
	googleOpts := []googleads.Option{googleads.WithRateLimit(cfg.GoogleAds.RateLimit)}
	if cfg.GoogleAds.LoginCustomerID != "" {
		googleOpts = append(googleOpts, googleads.WithLoginCustomerID(cfg.GoogleAds.LoginCustomerID))
	}
	google := uploader.NewGoogleUploader(
		googleads.NewClient(googleads.Credentials{
			DeveloperToken: cfg.GoogleAds.DeveloperToken,
			ClientID:       cfg.GoogleAds.ClientID,
			ClientSecret:   cfg.GoogleAds.ClientSecret,
			RefreshToken:   cfg.GoogleAds.RefreshToken,
			CustomerID:     cfg.GoogleAds.CustomerID,
		}, googleOpts...),
		cfg.GoogleAds.ConversionAction,
		cfg.GoogleAds.BatchSize,
	)

	msCreds := msads.Credentials{
		DeveloperToken: cfg.MicrosoftAds.DeveloperToken,
		CustomerID:     cfg.MicrosoftAds.CustomerID,
		AccountID:      cfg.MicrosoftAds.AccountID,
		AccessToken:    cfg.MicrosoftAds.AccessToken,
	}
	var msClient msads.Client
	if msCreds.Configured() {
		msClient = msads.NewClient(msCreds)
	}
	microsoft := uploader.NewMicrosoftUploader(msClient, msCreds, cfg.MicrosoftAds.ConversionName)

	return []uploader.ConversionSink{google, microsoft}
}

func init() {
	rootCmd.Flags().StringVar(&uploadDate, "date", "", "last day of the range, YYYY-MM-DD UTC (default: yesterday)")
	rootCmd.Flags().IntVar(&uploadDays, "days", 1, "trailing window length in days (1-90)")
	rootCmd.Flags().BoolVar(&uploadDryRun, "dry-run", false, "reconcile and report without uploading anything")
	rootCmd.Flags().BoolVarP(&uploadVerbose, "verbose", "v", false, "list every matched and unmatched call")
	rootCmd.Flags().StringVar(&uploadFormat, "format", "text", "report format: text, json, or yaml")
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "conversions.db"
		}
		return store.NewSQLiteStore(dsn)
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store.NewPostgresStore(pool), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
