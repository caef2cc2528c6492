package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"erc20idx/pkg/config"
	"erc20idx/pkg/models"
	"erc20idx/pkg/rpc"
	"erc20idx/pkg/wallet"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// runSelfTest checks the configuration and probes the configured endpoints.
// It reports whether everything needed for a query is in order.
func runSelfTest(ctx context.Context, cfg config.Config, path string, out io.Writer, jsonOut bool) (models.TestReport, bool) {
	report := models.TestReport{
		ConfigPath:    path,
		Network:       cfg.API.Network,
		TargetChainID: cfg.TargetChainID(),
	}
	say := func(format string, args ...interface{}) {
		if !jsonOut {
			fmt.Fprintf(out, format, args...)
		}
	}

	say("Testing configuration at: %s\n", path)
	problems := cfg.Validate()
	report.ValidStructure = len(problems) == 0
	report.StructureErrors = problems
	for _, p := range problems {
		say("Error: %s\n", p)
	}

	ok := report.ValidStructure
	if _, err := (rpc.Options{URL: cfg.API.URL, Network: cfg.API.Network, APIKey: cfg.API.APIKey}).Endpoint(); err != nil {
		report.Endpoints = append(report.Endpoints, models.EndpointResult{Name: "data-api", Status: "skipped", Error: err.Error()})
		say("Data API: skipped (%v)\n", err)
	} else {
		res := probeAPI(ctx, cfg)
		report.Endpoints = append(report.Endpoints, res)
		if res.Status != "ok" {
			ok = false
			say("Data API %s ... Failed: %s\n", res.URL, res.Error)
		} else {
			say("Data API %s ... OK (ChainID: %s, %s)", res.URL, res.ChainID, res.Latency)
			if report.TargetChainID != "" && !wallet.SameChain(res.ChainID, report.TargetChainID) {
				report.ChainMismatch = true
				ok = false
				say(" - MISMATCH! Expected %s", report.TargetChainID)
			}
			say("\n")
		}
	}

	if cfg.Wallet.RPCURL != "" {
		res := probeWallet(ctx, cfg)
		report.Endpoints = append(report.Endpoints, res)
		if res.Status != "ok" {
			say("Wallet %s ... Failed: %s\n", res.URL, res.Error)
		} else {
			say("Wallet %s ... OK (ChainID: %s)", res.URL, res.ChainID)
			if !wallet.SameChain(res.ChainID, report.TargetChainID) {
				say(" - will request a switch to %s", report.TargetChainID)
			}
			say("\n")
		}
	} else {
		say("Wallet: not configured, addresses must be entered manually\n")
	}

	if jsonOut {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	return report, ok
}

func probeAPI(ctx context.Context, cfg config.Config) models.EndpointResult {
	client, err := rpc.Dial(ctx, rpc.Options{
		URL:     cfg.API.URL,
		Network: cfg.API.Network,
		APIKey:  cfg.API.APIKey,
		Timeout: 10 * time.Second,
	}, zap.NewNop())
	if err != nil {
		return models.EndpointResult{Name: "data-api", Status: "error", Error: err.Error()}
	}
	defer client.Close()
	return client.Probe(ctx)
}

func probeWallet(ctx context.Context, cfg config.Config) models.EndpointResult {
	res := models.EndpointResult{Name: "wallet", URL: cfg.Wallet.RPCURL}
	p, err := wallet.Dial(ctx, cfg.Wallet.RPCURL, 10*time.Second, nil)
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
		return res
	}
	defer p.Close()

	start := time.Now()
	id, err := p.ChainID(ctx)
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
		return res
	}
	res.Status = "ok"
	res.ChainID = id
	res.Latency = time.Since(start).Round(time.Millisecond).String()
	return res
}
