package api

import (
	"context"
	"encoding/json"
)

// DashboardAPI serves the overview page
type DashboardAPI struct {
	ep *endpoint
}

func (a *DashboardAPI) GetOverviewStats(ctx context.Context) (json.RawMessage, error) {
	return a.ep.getJSON(ctx, "GetOverviewStats", "/dashboard/overview")
}

func (a *DashboardAPI) GetSecurityFeed(ctx context.Context) (json.RawMessage, error) {
	return a.ep.getJSON(ctx, "GetSecurityFeed", "/dashboard/security-feed")
}

func (a *DashboardAPI) GetNetworkOverview(ctx context.Context) (json.RawMessage, error) {
	return a.ep.getJSON(ctx, "GetNetworkOverview", "/dashboard/network-overview")
}

// ThreatDetectionAPI serves the threats page
type ThreatDetectionAPI struct {
	ep *endpoint
}

func (a *ThreatDetectionAPI) GetActiveThreats(ctx context.Context) (json.RawMessage, error) {
	return a.ep.getJSON(ctx, "GetActiveThreats", "/threats/active")
}

func (a *ThreatDetectionAPI) GetThreatStats(ctx context.Context) (json.RawMessage, error) {
	return a.ep.getJSON(ctx, "GetThreatStats", "/threats/stats")
}

// QuarantineThreat isolates a single threat by id
func (a *ThreatDetectionAPI) QuarantineThreat(ctx context.Context, threatID string) (json.RawMessage, error) {
	return a.ep.postJSON(ctx, "QuarantineThreat", "/threats/"+segment(threatID)+"/quarantine", nil)
}

// RunFullScan starts a full upstream scan
func (a *ThreatDetectionAPI) RunFullScan(ctx context.Context) (json.RawMessage, error) {
	return a.ep.postJSON(ctx, "RunFullScan", "/threats/scan", nil)
}

// NetworkMonitorAPI serves the network page
type NetworkMonitorAPI struct {
	ep *endpoint
}

func (a *NetworkMonitorAPI) GetNetworkStatus(ctx context.Context) (json.RawMessage, error) {
	return a.ep.getJSON(ctx, "GetNetworkStatus", "/network/status")
}

func (a *NetworkMonitorAPI) GetTrafficData(ctx context.Context) (json.RawMessage, error) {
	return a.ep.getJSON(ctx, "GetTrafficData", "/network/traffic")
}

func (a *NetworkMonitorAPI) GetDeviceList(ctx context.Context) (json.RawMessage, error) {
	return a.ep.getJSON(ctx, "GetDeviceList", "/network/devices")
}

type blockIPRequest struct {
	IP string `json:"ip"`
}

// BlockIP asks the upstream firewall to block an address
func (a *NetworkMonitorAPI) BlockIP(ctx context.Context, ip string) (json.RawMessage, error) {
	return a.ep.postJSON(ctx, "BlockIP", "/network/block-ip", blockIPRequest{IP: ip})
}
