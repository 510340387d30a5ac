package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/dbx"
	"github.com/dmitrijs2005/nocgateway/internal/server/auth"
	"github.com/dmitrijs2005/nocgateway/internal/server/models"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/nodes"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/nocgateway/internal/timex"
)

const (
	// NearbyRadiusMeters bounds the proximity lookup.
	NearbyRadiusMeters = 500.0
	// NearbyLimit caps proximity candidates.
	NearbyLimit = 5

	earthRadiusMeters = 6371000.0
	metersPerDegree   = 111320.0
)

// Procedure is one of the named transactions under /rest/v1/rpc/{name}.
type Procedure int

const (
	ProcNearbyNodes Procedure = iota + 1
	ProcMapStatus
	ProcTransitionAlert
	ProcHeartbeat
)

var procedureNames = map[string]Procedure{
	"nearby_nodes":     ProcNearbyNodes,
	"map_status":       ProcMapStatus,
	"transition_alert": ProcTransitionAlert,
	"heartbeat":        ProcHeartbeat,
}

// ParseProcedure maps a route name to a Procedure.
func ParseProcedure(name string) (Procedure, error) {
	p, ok := procedureNames[name]
	if !ok {
		return 0, fmt.Errorf("%w: rpc %s", common.ErrRelationNotFound, name)
	}
	return p, nil
}

func (p Procedure) String() string {
	for name, v := range procedureNames {
		if v == p {
			return name
		}
	}
	return fmt.Sprintf("Procedure(%d)", int(p))
}

type nearbyArgs struct {
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
	MapID string   `json:"map_id"`
}

type mapStatusArgs struct {
	MapID string `json:"map_id"`
}

type transitionArgs struct {
	AlertID string          `json:"alert_id"`
	Status  string          `json:"status"`
	Message *string         `json:"message"`
	Payload json.RawMessage `json:"payload"`
}

type heartbeatArgs struct {
	Source  string          `json:"source"`
	Payload json.RawMessage `json:"payload"`
}

// TransitionResult is returned by transition_alert.
type TransitionResult struct {
	AlertID        string             `json:"alert_id"`
	Status         string             `json:"status"`
	AcknowledgedAt *time.Time         `json:"acknowledged_at"`
	AcknowledgedBy *string            `json:"acknowledged_by"`
	ResolvedAt     *time.Time         `json:"resolved_at"`
	ResolvedBy     *string            `json:"resolved_by"`
	Event          *models.AlertEvent `json:"event"`
}

// RPCService runs the named procedures. Each invocation is independent.
type RPCService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         timex.Clock
}

func NewRPCService(db *sql.DB, m repomanager.RepositoryManager) *RPCService {
	return &RPCService{db: db, repomanager: m, now: time.Now}
}

// Invoke runs procedure p with JSON arguments.
func (s *RPCService) Invoke(ctx context.Context, id auth.Identity, p Procedure, args []byte) (any, error) {
	switch p {
	case ProcNearbyNodes:
		var a nearbyArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.Lat == nil || a.Lng == nil || a.MapID == "" {
			return nil, fmt.Errorf("%w: lat, lng and map_id are required", common.ErrValidation)
		}
		return s.NearbyNodes(ctx, id, a.MapID, *a.Lat, *a.Lng)
	case ProcMapStatus:
		var a mapStatusArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.MapID == "" {
			return nil, fmt.Errorf("%w: map_id is required", common.ErrValidation)
		}
		return s.repomanager.Nodes(s.db).MapStatus(ctx, id.TenantID, a.MapID)
	case ProcTransitionAlert:
		var a transitionArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return s.TransitionAlert(ctx, id, a)
	case ProcHeartbeat:
		var a heartbeatArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.Source == "" {
			return nil, fmt.Errorf("%w: source is required", common.ErrValidation)
		}
		return s.repomanager.Heartbeats(s.db).Touch(ctx, id.TenantID, a.Source, a.Payload, s.now().UTC())
	default:
		return nil, fmt.Errorf("%w: rpc %s", common.ErrRelationNotFound, p)
	}
}

// NearbyNodes returns up to NearbyLimit nodes within NearbyRadiusMeters of
// (lat, lng), closest first.
func (s *RPCService) NearbyNodes(ctx context.Context, id auth.Identity, mapID string, lat, lng float64) ([]*models.NearbyNode, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, fmt.Errorf("%w: coordinates out of range", common.ErrValidation)
	}

	candidates, err := s.repomanager.Nodes(s.db).InBox(ctx, id.TenantID, mapID, boundingBox(lat, lng, NearbyRadiusMeters))
	if err != nil {
		return nil, err
	}

	result := make([]*models.NearbyNode, 0, NearbyLimit)
	for _, n := range candidates {
		d := haversine(lat, lng, n.Lat, n.Lng)
		if d > NearbyRadiusMeters {
			continue
		}
		n.Distance = math.Round(d*10) / 10
		n.FreePorts = max(n.Capacity-n.UsedPorts, 0)
		result = append(result, n)
	}

	sort.SliceStable(result, func(i, j int) bool { return result[i].Distance < result[j].Distance })
	if len(result) > NearbyLimit {
		result = result[:NearbyLimit]
	}
	return result, nil
}

// TransitionAlert moves an alert to a new status and appends an event, in
// one transaction.
func (s *RPCService) TransitionAlert(ctx context.Context, id auth.Identity, a transitionArgs) (*TransitionResult, error) {
	if id.Role == auth.RoleViewer {
		return nil, fmt.Errorf("%w: viewers cannot change alerts", common.ErrForbidden)
	}
	if a.AlertID == "" {
		return nil, fmt.Errorf("%w: alert_id is required", common.ErrValidation)
	}
	switch a.Status {
	case models.AlertOpen, models.AlertAck, models.AlertResolved:
	default:
		return nil, fmt.Errorf("%w: status must be open, ack or resolved", common.ErrValidation)
	}

	var res *TransitionResult
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Alerts(tx)

		current, err := repo.Get(ctx, id.TenantID, a.AlertID)
		if err != nil {
			return err
		}

		next, err := repo.ApplyTransition(ctx, id.TenantID, a.AlertID, a.Status, id.UserID, s.now().UTC())
		if err != nil {
			return err
		}

		event, err := repo.AppendEvent(ctx, &models.AlertEvent{
			TenantID:   id.TenantID,
			AlertID:    a.AlertID,
			EventType:  EventType(current.Status, a.Status),
			FromStatus: current.Status,
			ToStatus:   a.Status,
			ActorID:    id.UserID,
			Message:    a.Message,
			Payload:    a.Payload,
		})
		if err != nil {
			return err
		}

		res = &TransitionResult{
			AlertID:        next.ID,
			Status:         next.Status,
			AcknowledgedAt: next.AcknowledgedAt,
			AcknowledgedBy: next.AcknowledgedBy,
			ResolvedAt:     next.ResolvedAt,
			ResolvedBy:     next.ResolvedBy,
			Event:          event,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EventType classifies a transition: open→ack is ACK, anything→resolved is
// RESOLVE, everything else UPDATE.
func EventType(from, to string) string {
	switch {
	case from == models.AlertOpen && to == models.AlertAck:
		return models.EventAck
	case to == models.AlertResolved:
		return models.EventResolve
	default:
		return models.EventUpdate
	}
}

func boundingBox(lat, lng, radius float64) nodes.Box {
	dLat := radius / metersPerDegree
	cos := math.Cos(lat * math.Pi / 180)
	dLng := 180.0
	if cos > 1e-9 {
		dLng = math.Min(radius/(metersPerDegree*cos), 180)
	}
	return nodes.Box{
		MinLat: lat - dLat, MaxLat: lat + dLat,
		MinLng: lng - dLng, MaxLng: lng + dLng,
	}
}

func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func decodeArgs(args []byte, dst any) error {
	args = bytes.TrimSpace(args)
	if len(args) == 0 {
		args = []byte("{}")
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return fmt.Errorf("%w: invalid arguments", common.ErrValidation)
	}
	return nil
}
