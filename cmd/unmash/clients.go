package main

import (
	"github.com/opencitations/doi-corrector/internal/config"
	"github.com/opencitations/doi-corrector/internal/crossref"
	"github.com/opencitations/doi-corrector/internal/metrics"
	"github.com/opencitations/doi-corrector/internal/opencitations"
	"github.com/opencitations/doi-corrector/internal/pdf"
	"github.com/opencitations/doi-corrector/internal/remote"
	"github.com/opencitations/doi-corrector/internal/resolver"
	"github.com/opencitations/doi-corrector/internal/s2"
)

// remoteOptions wires logging and, when m is set, request metrics.
func remoteOptions(m *metrics.Metrics) []remote.Option {
	opts := []remote.Option{remote.WithLogger(logger)}
	if m != nil {
		opts = append(opts, remote.WithRecorder(m))
	}
	return opts
}

func newIndexClient(cfg *config.Config, m *metrics.Metrics) *opencitations.Client {
	return opencitations.NewClient(opencitations.Config{
		Endpoint:    cfg.SPARQLEndpoint,
		PageSize:    cfg.PageSize,
		AccessToken: cfg.Credentials.AccessToken,
		Remote:      cfg.RemoteConfig(opencitations.ServiceIndex),
	}, remoteOptions(m)...)
}

func newMetaClient(cfg *config.Config, m *metrics.Metrics) *opencitations.MetaClient {
	return opencitations.NewMetaClient(opencitations.MetaConfig{
		Endpoint:    cfg.MetaEndpoint,
		AccessToken: cfg.Credentials.AccessToken,
		Remote:      cfg.RemoteConfig(opencitations.ServiceMeta),
	}, remoteOptions(m)...)
}

func newCrossrefClient(cfg *config.Config, m *metrics.Metrics) *crossref.Client {
	return crossref.NewClient(crossref.Config{
		BaseURL:   cfg.CrossrefEndpoint,
		Mailto:    cfg.Credentials.CrossrefMailto,
		PlusToken: cfg.Credentials.CrossrefPlusToken,
		Remote:    cfg.RemoteConfig(crossref.Service),
	}, remoteOptions(m)...)
}

func newS2Client(cfg *config.Config, m *metrics.Metrics) *s2.Client {
	return s2.NewClient(s2.Config{
		BaseURL: cfg.S2Endpoint,
		APIKey:  cfg.Credentials.S2APIKey,
		Remote:  cfg.RemoteConfig(s2.Service),
	}, remoteOptions(m)...)
}

// newChain builds the registry chain in the configured order, with local PDFs
// as reference augmenter when pdf_dir is set.
func newChain(cfg *config.Config, m *metrics.Metrics) *resolver.Chain {
	var registries []resolver.Registry
	for _, name := range cfg.Registries {
		switch name {
		case crossref.Service:
			registries = append(registries, newCrossrefClient(cfg, m))
		case opencitations.ServiceMeta:
			registries = append(registries, newMetaClient(cfg, m))
		case s2.Service:
			registries = append(registries, newS2Client(cfg, m))
		}
	}
	chain := resolver.NewChain(registries...).WithLogger(logger)
	if cfg.PDFDir != "" {
		chain = chain.WithAugmenter(pdf.NewRegistry(pdf.NewLibrary(cfg.PDFDir)))
	}
	return chain
}

// newResolver creates the run-scoped metadata resolver.
func newResolver(cfg *config.Config, m *metrics.Metrics) *resolver.Resolver {
	opts := []resolver.Option{resolver.WithLogger(logger)}
	if m != nil {
		opts = append(opts, resolver.WithRecorder(m))
	}
	return resolver.New(newChain(cfg, m), opts...)
}
