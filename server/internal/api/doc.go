// Package api implements the HTTP REST API for thermowatch-server.
//
// New(controller, maxImage) returns an http.Handler that serves:
//
//	GET    /api/v1/health                 status, storage health, counts
//	GET    /api/v1/dashboard              current measurement or status "no_data"
//	POST   /api/v1/measurements           manual reading, zones within [30, 45] °C
//	POST   /api/v1/measurements/simulate  reading from the built-in mock sensor
//	POST   /api/v1/images                 multipart "file"; 409 when superseded
//	DELETE /api/v1/images/pending         cancel the running image analysis
//	GET    /api/v1/history?days=&limit=   history, newest first
//	DELETE /api/v1/history                clear history
//	GET    /api/v1/history/stats?days=    aggregates over the last days (1..365)
//	GET    /api/v1/settings               api_url and alert_threshold
//	PUT    /api/v1/settings               update settings
//	GET    /api/v1/alerts                 firing and recently resolved alerts
//	GET    /metrics                       Prometheus text exposition
//
// All JSON endpoints return 405 for unsupported methods, 400 for invalid
// input and 200 with persisted=false when storage is unavailable.
package api
