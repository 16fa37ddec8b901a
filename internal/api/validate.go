package api

import (
	"fmt"

	"roadscout/internal/model"
)

func validateRouteRequest(req *model.RouteRequest) error {
	if req.BudgetM < 0 {
		return fmt.Errorf("budgetM must be >= 0")
	}
	if req.BudgetDriveMin < 0 {
		return fmt.Errorf("budgetDriveMin must be >= 0")
	}
	if req.BudgetM > 0 && req.BudgetDriveMin > 0 {
		return fmt.Errorf("set budgetM or budgetDriveMin, not both")
	}
	if req.MaxCandidates < 0 || req.MaxCandidates > 50 {
		return fmt.Errorf("maxCandidates must be in [0, 50]")
	}
	if req.Start != nil {
		if req.Start.Lat < -90 || req.Start.Lat > 90 || req.Start.Lng < -180 || req.Start.Lng > 180 {
			return fmt.Errorf("start %.4f,%.4f out of range", req.Start.Lat, req.Start.Lng)
		}
	}
	return nil
}

func validateCreateRequest(req *model.SessionCreateRequest) error {
	if req.Center != nil {
		if req.Center.Lat < -90 || req.Center.Lat > 90 || req.Center.Lng < -180 || req.Center.Lng > 180 {
			return fmt.Errorf("center %.4f,%.4f out of range", req.Center.Lat, req.Center.Lng)
		}
	}
	for name, w := range req.Weights {
		if w < 0 {
			return fmt.Errorf("weight for %s must be >= 0", name)
		}
	}
	return nil
}
