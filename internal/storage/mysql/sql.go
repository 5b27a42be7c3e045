package mysql

const upsertAppSQL = `
INSERT INTO apps
  (id, name, description, image_url, category, rating, total_reviews, top_keyword, turnarounds, sentiment)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name          = VALUES(name),
  description   = VALUES(description),
  image_url     = VALUES(image_url),
  category      = VALUES(category),
  rating        = VALUES(rating),
  total_reviews = VALUES(total_reviews),
  top_keyword   = VALUES(top_keyword),
  turnarounds   = VALUES(turnarounds),
  sentiment     = VALUES(sentiment),
  updated_at    = CURRENT_TIMESTAMP
`

// Re-running a snapshot for the same run replaces it.
const insertSnapshotSQL = `
INSERT INTO keyword_snapshots (app_id, run_id, keywords, captured_at)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  keywords    = VALUES(keywords),
  captured_at = VALUES(captured_at)
`

const insertMissSQL = `
INSERT INTO ingest_misses (app_id, reason)
VALUES (?, ?)
ON DUPLICATE KEY UPDATE seen_at = CURRENT_TIMESTAMP
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const appColumns = `
  id, name, description, image_url, category, rating,
  total_reviews, top_keyword, turnarounds, sentiment
`

const getAppSQL = `SELECT` + appColumns + `FROM apps WHERE id = ?`

const listAppsSQL = `SELECT` + appColumns + `FROM apps ORDER BY name, id LIMIT ? OFFSET ?`

const listAppsByCategorySQL = `SELECT` + appColumns + `FROM apps WHERE category = ? ORDER BY name, id LIMIT ? OFFSET ?`

const latestSnapshotSQL = `
SELECT run_id, keywords, captured_at
FROM keyword_snapshots
WHERE app_id = ?
ORDER BY captured_at DESC, id DESC
LIMIT 1
`
