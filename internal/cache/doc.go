// Package cache is the on-device mirror of the remote collections.
//
// Layout under the cache root:
//
//	users/{id}.json          one record per entity
//	users/index.json         JSON array of the ids currently cached
//	matches/ reports/ pointHistory/ rewardItems/ ...
//	prefs.toml               last_sync_date, current_user_id, unsynced_report_ids
//
// Every record is an independent file written via temp file + rename, so a
// torn write damages at most one record. Readers tolerate ids whose record
// is missing or corrupt by skipping them.
package cache
