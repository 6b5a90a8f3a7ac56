package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

const serviceVersion = "1.0.0"

// Request is the normalized request descriptor the router dispatches on.
// Body is UTF-8 text or empty.
type Request struct {
	Method     string
	Path       string
	PathParams map[string]string
	Query      map[string]string
	Headers    map[string]string
	Body       string
}

// Response is the HTTP-shaped response envelope.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// Router dispatches normalized requests to the store handles it was built
// with. It holds no per-request state; the stores are the only shared
// mutable state.
type Router struct {
	store    Store
	blobs    BlobStore
	cache    Cache
	observer Observer
	table    string
	bucket   string
	env      Environment
}

// NewRouter creates a router over the given backends. The cache and observer
// may be NoOp implementations but must not be nil.
func NewRouter(backends *Backends, cache Cache, observer Observer, cfg *Config, env Environment) *Router {
	return &Router{
		store:    backends.Store,
		blobs:    backends.BlobStore,
		cache:    cache,
		observer: observer,
		table:    cfg.AWS.DynamoDB.Table,
		bucket:   cfg.AWS.S3.Bucket,
		env:      env,
	}
}

// Handle processes one request and always produces a response. Uncaught
// panics become a 500 with the request id and never leak a stack trace.
func (rt *Router) Handle(ctx context.Context, req *Request) (resp *Response) {
	start := time.Now()
	requestID := uuid.NewString()

	rt.observer.Event("info", "Request started", map[string]interface{}{
		"requestId":   requestID,
		"method":      req.Method,
		"path":        req.Path,
		"environment": rt.env.Name(),
	})
	rt.observer.Metric("RequestCount", 1, UnitCount, map[string]string{
		"Method":      req.Method,
		"Path":        req.Path,
		"Environment": rt.env.Name(),
	})

	defer func() {
		if r := recover(); r != nil {
			resp = rt.internalError(requestID, fmt.Sprintf("%v", r))
		}
		duration := float64(time.Since(start).Milliseconds())
		rt.observer.Metric("RequestDuration", duration, UnitMilliseconds, nil)
		if resp.StatusCode >= 500 {
			rt.observer.Metric("FailedRequests", 1, UnitCount, nil)
			rt.observer.Event("error", "Request failed", map[string]interface{}{
				"requestId":  requestID,
				"statusCode": resp.StatusCode,
				"durationMs": duration,
			})
		} else {
			rt.observer.Metric("SuccessfulRequests", 1, UnitCount, nil)
			rt.observer.Event("info", "Request completed", map[string]interface{}{
				"requestId":  requestID,
				"statusCode": resp.StatusCode,
				"durationMs": duration,
			})
		}
	}()

	resp = rt.route(ctx, requestID, req)
	return resp
}

func (rt *Router) route(ctx context.Context, requestID string, req *Request) *Response {
	switch req.Path {
	case "/health":
		if req.Method == "GET" {
			return rt.handleHealth(ctx)
		}
		return rt.methodNotAllowed(req)

	case "/users":
		switch req.Method {
		case "GET":
			return rt.listUsers(ctx)
		case "POST":
			return rt.createUser(ctx, req.Body)
		default:
			return rt.methodNotAllowed(req)
		}

	case "/files":
		switch req.Method {
		case "GET":
			return rt.listFiles(ctx, req.Query["prefix"])
		case "POST":
			return rt.uploadFile(ctx, req.Body)
		default:
			return rt.methodNotAllowed(req)
		}
	}

	if id := pathParam(req, "id", "/users/"); id != "" {
		switch req.Method {
		case "GET":
			return rt.getUser(ctx, id)
		case "PUT":
			return rt.updateUser(ctx, id, req.Body)
		case "DELETE":
			return rt.deleteUser(ctx, id)
		default:
			return rt.methodNotAllowed(req)
		}
	}

	if fileName := pathParam(req, "fileName", "/files/"); fileName != "" {
		if req.Method == "GET" {
			folder := req.Query["folder"]
			if folder == "" {
				folder = "uploads"
			}
			return rt.downloadFile(ctx, folder, fileName)
		}
		return rt.methodNotAllowed(req)
	}

	return rt.routeNotFound(req)
}

// pathParam resolves a path parameter, preferring an explicit pathParameters
// entry over parsing the raw path.
func pathParam(req *Request, name, prefix string) string {
	if v := req.PathParams[name]; v != "" && strings.HasPrefix(req.Path, prefix) {
		return v
	}
	if !strings.HasPrefix(req.Path, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(req.Path, prefix)
	if rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}

func (rt *Router) handleHealth(ctx context.Context) *Response {
	rt.observer.Event("info", "Health check requested", nil)

	dbHealth := "healthy"
	if _, err := rt.store.Scan(ctx, 1); err != nil {
		dbHealth = "unhealthy"
		rt.observer.Event("warn", "Database health check failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	storageHealth := "healthy"
	if _, err := rt.blobs.List(ctx, rt.bucket, "", 1); err != nil {
		storageHealth = "unhealthy"
		rt.observer.Event("warn", "Storage health check failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	status := "degraded"
	statusCode := 503
	if dbHealth == "healthy" && storageHealth == "healthy" {
		status = "healthy"
		statusCode = 200
	}

	rt.observer.Metric("HealthCheckRequests", 1, UnitCount, nil)
	serviceHealth := 0.0
	if status == "healthy" {
		serviceHealth = 1.0
	}
	rt.observer.Metric("ServiceHealth", serviceHealth, UnitCount, nil)

	return jsonResponse(statusCode, map[string]interface{}{
		"status":      status,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"version":     serviceVersion,
		"environment": rt.env.Name(),
		"region":      rt.env.Region,
		"checks": map[string]interface{}{
			"database": map[string]string{"status": dbHealth, "service": rt.table},
			"storage":  map[string]string{"status": storageHealth, "service": rt.bucket},
		},
	})
}

func (rt *Router) listUsers(ctx context.Context) *Response {
	result, err := rt.store.Scan(ctx, 0)
	if err != nil {
		rt.observer.Metric("DatabaseErrors", 1, UnitCount, map[string]string{"Operation": "Scan"})
		return errorResponse(500, "Failed to fetch users", err)
	}
	rt.observer.Metric("DatabaseOperations", 1, UnitCount, map[string]string{"Operation": "Scan"})

	return jsonResponse(200, map[string]interface{}{
		"users":        result.Items,
		"count":        result.Count,
		"scannedCount": result.ScannedCount,
	})
}

func (rt *Router) createUser(ctx context.Context, body string) *Response {
	if body == "" {
		return jsonResponse(400, map[string]string{"error": "Request body is required"})
	}

	var userData map[string]interface{}
	if err := json.Unmarshal([]byte(body), &userData); err != nil {
		return jsonResponse(400, map[string]string{"error": "Invalid JSON in request body"})
	}

	record, _ := RecordFromMap(userData)
	record.ID = newUserID()
	if record.Name == "" {
		record.Name = "Unknown"
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := rt.store.Put(ctx, record); err != nil {
		rt.observer.Metric("DatabaseErrors", 1, UnitCount, map[string]string{"Operation": "PutItem"})
		return errorResponse(500, "Failed to create user", err)
	}
	rt.observer.Metric("DatabaseOperations", 1, UnitCount, map[string]string{"Operation": "PutItem"})
	rt.observer.Metric("UsersCreated", 1, UnitCount, nil)

	profileKey := profileBlobKey(record.ID)
	profileBody, _ := json.Marshal(map[string]interface{}{
		"userId":         record.ID,
		"profileCreated": now.Format(time.RFC3339),
		"preferences": map[string]interface{}{
			"theme":         "light",
			"notifications": true,
		},
	})
	if _, err := rt.blobs.Put(ctx, rt.bucket, profileKey, profileBody, "application/json"); err != nil {
		rt.observer.Metric("S3Errors", 1, UnitCount, map[string]string{"Operation": "PutObject"})
		return errorResponse(500, "Failed to create user", err)
	}
	rt.observer.Metric("S3Operations", 1, UnitCount, map[string]string{"Operation": "PutObject"})

	return jsonResponse(201, map[string]interface{}{
		"message":         "User created successfully",
		"user":            record,
		"profileLocation": fmt.Sprintf("s3://%s/%s", rt.bucket, profileKey),
	})
}

func (rt *Router) getUser(ctx context.Context, id string) *Response {
	record, cacheErr := rt.cache.GetRecord(ctx, id)
	if cacheErr == nil && record != nil {
		rt.observer.Metric("CacheHits", 1, UnitCount, nil)
	} else {
		var err error
		record, err = rt.store.Get(ctx, id)
		if err != nil {
			rt.observer.Metric("DatabaseErrors", 1, UnitCount, map[string]string{"Operation": "GetItem"})
			return errorResponse(500, "Failed to get user", err)
		}
		rt.observer.Metric("DatabaseOperations", 1, UnitCount, map[string]string{"Operation": "GetItem"})

		if record != nil {
			if err := rt.cache.SetRecord(ctx, record); err != nil {
				rt.observer.Event("warn", "Failed to cache user", map[string]interface{}{
					"userId": id,
					"error":  err.Error(),
				})
			}
		}
	}

	if record == nil {
		return jsonResponse(404, map[string]string{"error": "User not found", "userId": id})
	}

	// Best-effort profile read: a missing blob degrades to a placeholder
	// instead of failing the request.
	var profile interface{}
	if obj, err := rt.blobs.Get(ctx, rt.bucket, profileBlobKey(id)); err == nil {
		if json.Unmarshal(obj.Body, &profile) != nil {
			profile = string(obj.Body)
		}
	} else {
		profile = map[string]string{"message": "No profile found"}
	}

	return jsonResponse(200, map[string]interface{}{
		"user":         record,
		"profile":      profile,
		"lastAccessed": time.Now().UTC().Format(time.RFC3339),
	})
}

func (rt *Router) updateUser(ctx context.Context, id string, body string) *Response {
	if body == "" {
		return jsonResponse(400, map[string]string{"error": "Request body is required"})
	}

	var updates map[string]interface{}
	if err := json.Unmarshal([]byte(body), &updates); err != nil {
		return jsonResponse(400, map[string]string{"error": "Invalid JSON in request body"})
	}

	// Only recognized fields are merged; updatedAt is refreshed by the store.
	mutation := make(map[string]interface{})
	if name, ok := updates["name"].(string); ok && name != "" {
		mutation["name"] = name
	}
	if email, ok := updates["email"].(string); ok && email != "" {
		mutation["email"] = email
	}

	if _, err := rt.store.Update(ctx, id, mutation); err != nil {
		rt.observer.Metric("DatabaseErrors", 1, UnitCount, map[string]string{"Operation": "UpdateItem"})
		return errorResponse(500, "Failed to update user", err)
	}
	rt.observer.Metric("DatabaseOperations", 1, UnitCount, map[string]string{"Operation": "UpdateItem"})
	rt.observer.Metric("UsersUpdated", 1, UnitCount, nil)

	if err := rt.cache.DeleteRecord(ctx, id); err != nil {
		rt.observer.Event("warn", "Failed to invalidate cached user", map[string]interface{}{
			"userId": id,
			"error":  err.Error(),
		})
	}

	return jsonResponse(200, map[string]string{
		"message": "User updated successfully",
		"userId":  id,
	})
}

func (rt *Router) deleteUser(ctx context.Context, id string) *Response {
	if err := rt.store.Delete(ctx, id); err != nil {
		rt.observer.Metric("DatabaseErrors", 1, UnitCount, map[string]string{"Operation": "DeleteItem"})
		return errorResponse(500, "Failed to delete user", err)
	}
	rt.observer.Metric("DatabaseOperations", 1, UnitCount, map[string]string{"Operation": "DeleteItem"})
	rt.observer.Metric("UsersDeleted", 1, UnitCount, nil)

	// Best-effort cleanup of the companion profile blob.
	if err := rt.blobs.Delete(ctx, rt.bucket, profileBlobKey(id)); err != nil {
		rt.observer.Metric("S3Errors", 1, UnitCount, map[string]string{"Operation": "DeleteObject"})
		rt.observer.Event("warn", "Failed to delete user profile blob", map[string]interface{}{
			"userId": id,
			"error":  err.Error(),
		})
	} else {
		rt.observer.Metric("S3Operations", 1, UnitCount, map[string]string{"Operation": "DeleteObject"})
	}

	if err := rt.cache.DeleteRecord(ctx, id); err != nil {
		rt.observer.Event("warn", "Failed to invalidate cached user", map[string]interface{}{
			"userId": id,
			"error":  err.Error(),
		})
	}

	return jsonResponse(200, map[string]string{
		"message": "User deleted successfully",
		"userId":  id,
	})
}

func (rt *Router) listFiles(ctx context.Context, prefix string) *Response {
	result, err := rt.blobs.List(ctx, rt.bucket, prefix, 0)
	if err != nil {
		rt.observer.Metric("S3Errors", 1, UnitCount, map[string]string{"Operation": "ListObjects"})
		return errorResponse(500, "Failed to list files", err)
	}
	rt.observer.Metric("S3Operations", 1, UnitCount, map[string]string{"Operation": "ListObjects"})

	return jsonResponse(200, map[string]interface{}{
		"files": result.Objects,
		"count": result.KeyCount,
	})
}

func (rt *Router) uploadFile(ctx context.Context, body string) *Response {
	if body == "" {
		return jsonResponse(400, map[string]string{"error": "Request body is required"})
	}

	var fileData map[string]interface{}
	if err := json.Unmarshal([]byte(body), &fileData); err != nil {
		return jsonResponse(400, map[string]string{"error": "Invalid JSON in request body"})
	}

	content, _ := fileData["content"].(string)
	if content == "" {
		return jsonResponse(400, map[string]string{"error": "File content is required"})
	}

	fileName, _ := fileData["fileName"].(string)
	if fileName == "" {
		fileName, _ = fileData["name"].(string)
	}
	if fileName == "" {
		fileName = fmt.Sprintf("file-%d.txt", time.Now().UnixMilli())
	}
	contentType, _ := fileData["contentType"].(string)
	if contentType == "" {
		contentType = "text/plain"
	}

	key := "uploads/" + fileName
	if _, err := rt.blobs.Put(ctx, rt.bucket, key, []byte(content), contentType); err != nil {
		rt.observer.Metric("S3Errors", 1, UnitCount, map[string]string{"Operation": "PutObject"})
		return errorResponse(500, "Failed to upload file", err)
	}
	rt.observer.Metric("S3Operations", 1, UnitCount, map[string]string{"Operation": "PutObject"})
	rt.observer.Metric("FilesUploaded", 1, UnitCount, nil)

	return jsonResponse(201, map[string]string{
		"message":  "File uploaded successfully",
		"fileName": fileName,
		"location": fmt.Sprintf("s3://%s/%s", rt.bucket, key),
	})
}

func (rt *Router) downloadFile(ctx context.Context, folder, fileName string) *Response {
	obj, err := rt.blobs.Get(ctx, rt.bucket, folder+"/"+fileName)
	if err != nil {
		if IsNotFound(err) {
			return jsonResponse(404, map[string]string{"error": "File not found", "fileName": fileName})
		}
		rt.observer.Metric("S3Errors", 1, UnitCount, map[string]string{"Operation": "GetObject"})
		return errorResponse(500, "Failed to get file", err)
	}
	rt.observer.Metric("S3Operations", 1, UnitCount, map[string]string{"Operation": "GetObject"})

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Response{
		StatusCode: 200,
		Headers: map[string]string{
			"Content-Type":                contentType,
			"Access-Control-Allow-Origin": "*",
		},
		Body: string(obj.Body),
	}
}

func (rt *Router) methodNotAllowed(req *Request) *Response {
	return jsonResponse(405, map[string]string{
		"error":  "Method not allowed",
		"method": req.Method,
		"path":   req.Path,
	})
}

func (rt *Router) routeNotFound(req *Request) *Response {
	return jsonResponse(404, map[string]string{
		"error":  "Route not found",
		"path":   req.Path,
		"method": req.Method,
	})
}

func (rt *Router) internalError(requestID, message string) *Response {
	return jsonResponse(500, map[string]string{
		"error":     "Internal server error",
		"message":   message,
		"requestId": requestID,
	})
}

func profileBlobKey(id string) string {
	return fmt.Sprintf("profiles/%s.json", id)
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newUserID issues a fresh unique id: a monotonic timestamp plus a random
// suffix to avoid collisions under concurrent creates.
func newUserID() string {
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return fmt.Sprintf("user-%d-%s", time.Now().UnixMilli(), suffix)
}

func jsonHeaders() map[string]string {
	return map[string]string{
		"Content-Type":                "application/json",
		"Access-Control-Allow-Origin": "*",
	}
}

func jsonResponse(statusCode int, payload interface{}) *Response {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Response{
			StatusCode: 500,
			Headers:    jsonHeaders(),
			Body:       `{"error":"Internal server error","message":"failed to encode response"}`,
		}
	}
	return &Response{
		StatusCode: statusCode,
		Headers:    jsonHeaders(),
		Body:       string(body),
	}
}

func errorResponse(statusCode int, message string, err error) *Response {
	return jsonResponse(statusCode, map[string]string{
		"error":   message,
		"message": err.Error(),
	})
}
