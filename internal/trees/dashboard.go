package trees

import "context"

const (
	dashboardRecentLimit    = 5
	dashboardMapPointLimit  = 50
	dashboardHistogramSpan  = 6
	fallbackNomePopularList = "Sem identificação"
	fallbackNomePopularMap  = "Árvore"
)

// DashboardTotals aggregates collection-wide counters.
type DashboardTotals struct {
	TotalTrees  int64 `json:"totalTrees"`
	TotalCities int64 `json:"totalCities"`
	TotalStates int64 `json:"totalStates"`
}

// RecentRecord is a condensed listing entry for the most recent surveys.
type RecentRecord struct {
	UniqueID       string `json:"uniqueId"`
	NomePopular    string `json:"nomePopular"`
	NomeCientifico string `json:"nomeCientifico"`
	DataCadastro   string `json:"dataCadastro"`
}

// MapPoint is a geolocated survey marker.
type MapPoint struct {
	UniqueID    string `json:"uniqueId"`
	Latitude    string `json:"latitude"`
	Longitude   string `json:"longitude"`
	NomePopular string `json:"nomePopular"`
}

// ActivityBucket is one month of registration counts.
type ActivityBucket struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// DashboardData is the read-only aggregate view backing the home tab.
type DashboardData struct {
	Stats          DashboardTotals  `json:"stats"`
	RecentRecords  []RecentRecord   `json:"recentRecords"`
	MapPoints      []MapPoint       `json:"mapPoints"`
	RecentActivity []ActivityBucket `json:"recentActivity"`
}

// DashboardData computes the aggregate widgets: totals, the five most recent
// records, up to fifty geolocated points, and a six-month registration
// histogram in chronological order. No write side effects.
func (s *Service) DashboardData(ctx context.Context) (DashboardData, error) {
	db := s.store.db.WithContext(ctx)
	data := DashboardData{
		RecentRecords:  make([]RecentRecord, 0, dashboardRecentLimit),
		MapPoints:      make([]MapPoint, 0),
		RecentActivity: make([]ActivityBucket, 0, dashboardHistogramSpan),
	}

	if err := db.Model(&TreeRecord{}).Count(&data.Stats.TotalTrees).Error; err != nil {
		s.logError(opDashboardData, "count_failed", err)
		return DashboardData{}, newServiceError(opDashboardData, "count_failed", err)
	}
	if err := db.Model(&TreeRecord{}).
		Where("cidade <> ''").
		Distinct("cidade").
		Count(&data.Stats.TotalCities).Error; err != nil {
		s.logError(opDashboardData, "city_count_failed", err)
		return DashboardData{}, newServiceError(opDashboardData, "city_count_failed", err)
	}
	if err := db.Model(&TreeRecord{}).
		Where("estado <> ''").
		Distinct("estado").
		Count(&data.Stats.TotalStates).Error; err != nil {
		s.logError(opDashboardData, "state_count_failed", err)
		return DashboardData{}, newServiceError(opDashboardData, "state_count_failed", err)
	}

	var recent []TreeRecord
	if err := db.Model(&TreeRecord{}).
		Order("data_cadastro DESC").
		Limit(dashboardRecentLimit).
		Find(&recent).Error; err != nil {
		s.logError(opDashboardData, "recent_query_failed", err)
		return DashboardData{}, newServiceError(opDashboardData, "recent_query_failed", err)
	}
	for _, record := range recent {
		entry := RecentRecord{
			UniqueID:       record.UniqueID,
			NomePopular:    record.NomePopular,
			NomeCientifico: record.NomeCientifico,
			DataCadastro:   record.DataCadastro,
		}
		if entry.NomePopular == "" {
			entry.NomePopular = fallbackNomePopularList
		}
		data.RecentRecords = append(data.RecentRecords, entry)
	}

	var located []TreeRecord
	if err := db.Model(&TreeRecord{}).
		Where("latitude <> '' AND longitude <> ''").
		Order("data_cadastro DESC").
		Limit(dashboardMapPointLimit).
		Find(&located).Error; err != nil {
		s.logError(opDashboardData, "map_query_failed", err)
		return DashboardData{}, newServiceError(opDashboardData, "map_query_failed", err)
	}
	for _, record := range located {
		point := MapPoint{
			UniqueID:    record.UniqueID,
			Latitude:    record.Latitude,
			Longitude:   record.Longitude,
			NomePopular: record.NomePopular,
		}
		if point.NomePopular == "" {
			point.NomePopular = fallbackNomePopularMap
		}
		data.MapPoints = append(data.MapPoints, point)
	}

	type monthRow struct {
		Month string
		Total int64
	}
	var rows []monthRow
	if err := db.Model(&TreeRecord{}).
		Select("substr(data_cadastro, 1, 7) AS month, COUNT(*) AS total").
		Group("month").
		Order("month DESC").
		Limit(dashboardHistogramSpan).
		Scan(&rows).Error; err != nil {
		s.logError(opDashboardData, "histogram_query_failed", err)
		return DashboardData{}, newServiceError(opDashboardData, "histogram_query_failed", err)
	}
	// Newest-first from the query, reversed for chronological charting.
	for i := len(rows) - 1; i >= 0; i-- {
		data.RecentActivity = append(data.RecentActivity, ActivityBucket{
			Label: rows[i].Month,
			Value: rows[i].Total,
		})
	}

	return data, nil
}
