package mapper

import (
	"strings"

	logger "github.com/sirupsen/logrus"

	"allocengine/src/externalmodel"
	"allocengine/src/model"
	"allocengine/src/playbook"
)

// MapSignalRow converts one raw feed row into the engine's Signal type,
// resolving the playbook name against the registry. Returns nil for rows too
// malformed to act on; the caller skips those.
func MapSignalRow(row *externalmodel.SignalRow, plays *playbook.Registry) *model.Signal {
	if row == nil {
		return nil
	}
	if row.Symbol == "" || row.SignalUID == "" {
		logger.WithFields(map[string]interface{}{
			"mapper": "MapSignalRow",
			"row_id": row.ID,
		}).Error("feed row missing symbol or uid, skipped")
		return nil
	}

	direction := model.DirectionLong
	switch strings.ToUpper(row.Direction) {
	case "LONG", "BUY":
		direction = model.DirectionLong
	case "SHORT", "SELL":
		direction = model.DirectionShort
	default:
		logger.WithFields(map[string]interface{}{
			"mapper":    "MapSignalRow",
			"row_id":    row.ID,
			"direction": row.Direction,
		}).Error("feed row has unknown direction, skipped")
		return nil
	}

	confidence := row.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	sig := &model.Signal{
		ID:           row.SignalUID,
		Symbol:       row.Symbol,
		Direction:    direction,
		EdgeEstimate: row.EdgeEstimate,
		Confidence:   confidence,
		HorizonDays:  row.HorizonDays,
		Sector:       row.Sector,
		Strategy:     row.Strategy,
		EventID:      row.EventID,
		CatalystTime: row.CatalystTime,
	}

	if plays != nil && row.PlaybookName != "" {
		sig.Override = plays.Lookup(row.PlaybookName)
	}

	return sig
}

// MapSignalRows maps a batch, dropping malformed rows.
func MapSignalRows(rows []externalmodel.SignalRow, plays *playbook.Registry) []*model.Signal {
	out := make([]*model.Signal, 0, len(rows))
	for i := range rows {
		if sig := MapSignalRow(&rows[i], plays); sig != nil {
			out = append(out, sig)
		}
	}
	return out
}
