// Package model defines the fanscout entities shared by the remote store,
// the local cache and the points ledger.
//
// # Overview
//
// Every entity is a flat JSON document keyed by its ID. The same encoding is
// used for the remote document store and for the one-file-per-record local
// cache, so an entity read from either side round-trips without loss.
//
// Optional fields are pointers tagged `omitempty`; an absent field decodes to
// nil rather than an error.
//
// # Collections
//
//	users           User
//	clubs           Club
//	matches         Match
//	reportTemplates ReportTemplate
//	reports         ScoutingReport
//	pointHistory    PointHistory
//	rewardItems     RewardItem
//	redemptions     RewardRedemption
//
// # Invariants
//
//   - User.Points is never negative.
//   - PointHistory records are append-only.
//   - ScoutingReport.Status only moves draft -> submitted -> reviewed.
//   - RewardItem.PointCost is strictly positive.
package model
