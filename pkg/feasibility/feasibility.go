// Package feasibility decides whether an intent can be executed given the
// current world state. Intents are checked against an ordered list of
// constraints (resource, physical, policy, spatial); spatial constraints are
// validated against the state store's terrain and entity tables.
package feasibility

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/geoscrai/universalis/pkg/logger"
	"github.com/geoscrai/universalis/pkg/model"
	"github.com/geoscrai/universalis/pkg/state"
)

// ConstraintType classifies constraints for reporting and recommendations.
type ConstraintType string

const (
	ConstraintBudget    ConstraintType = "budget"
	ConstraintLogistics ConstraintType = "logistics"
	ConstraintPhysical  ConstraintType = "physical"
	ConstraintTemporal  ConstraintType = "temporal"
	ConstraintResource  ConstraintType = "resource"
	ConstraintPolicy    ConstraintType = "policy"
	ConstraintSpatial   ConstraintType = "spatial"
)

// CheckFunc evaluates one constraint against an intent and the world state.
// A false return marks a violation; an error marks the check itself as
// broken, which is logged and skipped rather than reported as a violation.
type CheckFunc func(intent string, ws *model.WorldState) (bool, error)

// Constraint is a named feasibility rule.
type Constraint struct {
	Name         string
	Type         ConstraintType
	Check        CheckFunc
	ErrorMessage string
}

// Violation describes one failed constraint.
type Violation struct {
	Constraint string         `json:"constraint"`
	Type       ConstraintType `json:"type"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

// Report is the full feasibility assessment of an intent.
type Report struct {
	Feasible           bool        `json:"feasible"`
	Intent             string      `json:"intent"`
	ConstraintsChecked []string    `json:"constraints_checked"`
	Violations         []Violation `json:"violations"`
	Recommendations    []string    `json:"recommendations"`
}

// Engine checks intents against registered constraints. The default set
// covers resource availability, asset operational status, actor
// authorization, and spatial movement.
type Engine struct {
	constraints []Constraint
	spatial     *SpatialChecker
}

// NewEngine builds an engine with the default constraints. store may be nil,
// in which case spatial checks pass trivially.
func NewEngine(store *state.StateStore) *Engine {
	e := &Engine{}
	if store != nil {
		e.spatial = NewSpatialChecker(store)
	}
	e.registerDefaultConstraints()
	return e
}

// Spatial exposes the underlying spatial checker, or nil when the engine has
// no state store.
func (e *Engine) Spatial() *SpatialChecker {
	return e.spatial
}

func (e *Engine) registerDefaultConstraints() {
	e.constraints = append(e.constraints,
		Constraint{
			Name:         "resource_availability",
			Type:         ConstraintResource,
			Check:        checkResourceAvailability,
			ErrorMessage: "Required resources are not available",
		},
		Constraint{
			Name:         "asset_operational",
			Type:         ConstraintPhysical,
			Check:        checkAssetOperational,
			ErrorMessage: "Referenced asset is not operational",
		},
		Constraint{
			Name:         "actor_authorized",
			Type:         ConstraintPolicy,
			Check:        checkActorAuthorization,
			ErrorMessage: "Actor is not authorized to perform this action",
		},
		Constraint{
			Name:         "spatial_movement",
			Type:         ConstraintSpatial,
			Check:        e.checkSpatialMovement,
			ErrorMessage: "Movement blocked by terrain or distance",
		},
	)
}

// RegisterConstraint appends a custom constraint checked after the defaults.
func (e *Engine) RegisterConstraint(c Constraint) {
	e.constraints = append(e.constraints, c)
	logger.GetLogger().Info("Registered constraint", "name", c.Name)
}

// CheckFeasibility runs every registered constraint against the intent and
// returns the aggregated report. A constraint whose check errors is logged
// and skipped, never counted as a violation.
func (e *Engine) CheckFeasibility(intent string, ws *model.WorldState) *Report {
	report := &Report{
		Intent:             intent,
		ConstraintsChecked: []string{},
		Violations:         []Violation{},
		Recommendations:    []string{},
	}

	for _, constraint := range e.constraints {
		report.ConstraintsChecked = append(report.ConstraintsChecked, constraint.Name)

		ok, err := constraint.Check(intent, ws)
		if err != nil {
			logger.GetLogger().Warn("Constraint check failed", "constraint", constraint.Name, "error", err)
			continue
		}
		if !ok {
			report.Violations = append(report.Violations, Violation{
				Constraint: constraint.Name,
				Type:       constraint.Type,
				Message:    constraint.ErrorMessage,
			})
		}
	}

	for _, violation := range report.Violations {
		if rec := recommendationFor(violation.Type); rec != "" {
			report.Recommendations = append(report.Recommendations, rec)
		}
	}

	report.Feasible = len(report.Violations) == 0
	return report
}

// checkResourceAvailability fails when an asset mentioned in the intent is
// destroyed, unavailable, or out of fuel.
func checkResourceAvailability(intent string, ws *model.WorldState) (bool, error) {
	lowered := strings.ToLower(intent)
	for assetID, asset := range ws.Assets {
		if !mentions(lowered, assetID, asset.Name) {
			continue
		}
		if asset.Status == "destroyed" || asset.Status == "unavailable" {
			return false, nil
		}
		if fuel, ok := numericAttribute(asset.Attributes, "fuel"); ok && fuel <= 0 {
			return false, nil
		}
	}
	return true, nil
}

// checkAssetOperational fails when a mentioned asset is not in an
// operational status.
func checkAssetOperational(intent string, ws *model.WorldState) (bool, error) {
	lowered := strings.ToLower(intent)
	for assetID, asset := range ws.Assets {
		if !mentions(lowered, assetID, asset.Name) {
			continue
		}
		switch asset.Status {
		case "active", "ready", "standby":
		default:
			return false, nil
		}
	}
	return true, nil
}

// checkActorAuthorization fails when the intent names an actor together with
// an asset that actor does not control.
func checkActorAuthorization(intent string, ws *model.WorldState) (bool, error) {
	lowered := strings.ToLower(intent)
	for actorID, actor := range ws.Actors {
		if !strings.Contains(lowered, strings.ToLower(actorID)) {
			continue
		}
		for assetID := range ws.Assets {
			if !strings.Contains(lowered, strings.ToLower(assetID)) {
				continue
			}
			controlled := false
			for _, owned := range actor.Assets {
				if owned == assetID {
					controlled = true
					break
				}
			}
			if !controlled {
				return false, nil
			}
		}
	}
	return true, nil
}

var (
	movementKeywords = []string{"move", "go", "travel", "deploy", "relocate", "dispatch", "send"}
	coordPattern     = regexp.MustCompile(`[-]?\d+\.?\d*[,\s]+[-]?\d+\.?\d*`)
	coordSeparator   = regexp.MustCompile(`[,\s]+`)
)

// checkSpatialMovement looks for movement keywords plus coordinate pairs in
// the intent and verifies terrain passability at each target. Coordinates are
// written lat-first. Spatial query errors default to allowing the movement.
func (e *Engine) checkSpatialMovement(intent string, ws *model.WorldState) (bool, error) {
	if e.spatial == nil {
		return true, nil
	}

	lowered := strings.ToLower(intent)
	hasMovement := false
	for _, kw := range movementKeywords {
		if strings.Contains(lowered, kw) {
			hasMovement = true
			break
		}
	}
	if !hasMovement {
		return true, nil
	}

	matches := coordPattern.FindAllString(intent, -1)
	if len(matches) == 0 {
		return true, nil
	}

	for _, match := range matches {
		parts := coordSeparator.Split(strings.TrimSpace(match), -1)
		if len(parts) < 2 {
			continue
		}
		lat, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			continue
		}

		result, err := e.spatial.CheckTerrainPassability(lon, lat)
		if err != nil {
			logger.GetLogger().Warn("Spatial constraint check error", "error", err)
			return true, nil
		}
		if !result.Passed {
			logger.GetLogger().Warn("Spatial constraint failed", "message", result.Message)
			return false, nil
		}
	}
	return true, nil
}

func recommendationFor(t ConstraintType) string {
	switch t {
	case ConstraintResource:
		return "Consider reallocating resources or waiting for replenishment"
	case ConstraintPhysical:
		return "Asset may need repairs or status update before use"
	case ConstraintPolicy:
		return "Request authorization or use assets under your control"
	case ConstraintBudget:
		return "Review budget allocation or reduce scope of operation"
	case ConstraintLogistics:
		return "Consider alternative routes or staging areas"
	case ConstraintSpatial:
		return "Choose a different route or destination to avoid impassable terrain"
	}
	return ""
}

// CheckMovementFeasibility validates an entity's move to a target point via
// the spatial checker and folds the results into a Report.
func (e *Engine) CheckMovementFeasibility(entityID string, targetLon, targetLat float64, maxDistanceDegrees *float64) (*Report, error) {
	if e.spatial == nil {
		return nil, fmt.Errorf("no state store configured for spatial checks")
	}

	passed, results, err := e.spatial.ValidateMovement(entityID, targetLon, targetLat, maxDistanceDegrees)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Feasible:           passed,
		Intent:             fmt.Sprintf("Move %s to (%g, %g)", entityID, targetLon, targetLat),
		ConstraintsChecked: []string{},
		Violations:         []Violation{},
		Recommendations:    []string{},
	}
	for _, result := range results {
		report.ConstraintsChecked = append(report.ConstraintsChecked, string(result.ConstraintType))
		if !result.Passed {
			report.Violations = append(report.Violations, Violation{
				Constraint: string(result.ConstraintType),
				Type:       ConstraintSpatial,
				Message:    result.Message,
				Details:    result.Details,
			})
		}
	}
	if !passed {
		report.Recommendations = append(report.Recommendations, "Consider alternative routes or closer destinations")
	}
	return report, nil
}

// CheckDistanceConstraint reports whether two entities are within the given
// distance of each other.
func (e *Engine) CheckDistanceConstraint(entity1ID, entity2ID string, maxDistanceDegrees float64) bool {
	if e.spatial == nil {
		return false
	}
	return e.spatial.CheckDistanceConstraint(entity1ID, entity2ID, maxDistanceDegrees).Passed
}

// CheckPathFeasibility reports whether the straight path between two points
// is clear, its movement cost, and the blocking terrain's name when blocked.
func (e *Engine) CheckPathFeasibility(startLon, startLat, endLon, endLat float64) (bool, float64, string, error) {
	if e.spatial == nil {
		return false, 0, "", fmt.Errorf("no state store configured for spatial checks")
	}
	result, err := e.spatial.CheckPathConstraint(startLon, startLat, endLon, endLat)
	if err != nil {
		return false, 0, "", err
	}
	if !result.Passed {
		blocker, _ := result.Details["blocker"].(string)
		return false, math.Inf(1), blocker, nil
	}
	cost, _ := result.Details["movement_cost"].(float64)
	if cost == 0 {
		cost = 1.0
	}
	return true, cost, "", nil
}

// CheckBudgetConstraint reports whether a cost fits the available budget.
func (e *Engine) CheckBudgetConstraint(cost, availableBudget float64) bool {
	return cost <= availableBudget
}

// CheckTimeConstraint reports whether an action fits the available time.
func (e *Engine) CheckTimeConstraint(requiredTime, availableTime float64) bool {
	return requiredTime <= availableTime
}

func mentions(loweredIntent, id, name string) bool {
	if id != "" && strings.Contains(loweredIntent, strings.ToLower(id)) {
		return true
	}
	return name != "" && strings.Contains(loweredIntent, strings.ToLower(name))
}

func numericAttribute(attrs map[string]any, key string) (float64, bool) {
	switch v := attrs[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
