package server

import (
	"errors"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/easildur24/investorcenter.ai-sub015/internal/auth"
	"github.com/easildur24/investorcenter.ai-sub015/internal/domain"
	"github.com/easildur24/investorcenter.ai-sub015/internal/errval"
)

var validatePriority validator.Func = func(fl validator.FieldLevel) bool {
	return domain.ValidPriority(domain.TaskPriority(fl.Field().String()))
}

var validateStatus validator.Func = func(fl validator.FieldLevel) bool {
	return domain.ValidStatus(domain.TaskStatus(fl.Field().String()))
}

var validateTypeName validator.Func = func(fl validator.FieldLevel) bool {
	return domain.ValidTaskTypeName(fl.Field().String())
}

var validateSkillPath validator.Func = func(fl validator.FieldLevel) bool {
	return domain.ValidSkillPath(fl.Field().String())
}

func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		for name, fn := range map[string]validator.Func{
			"validate_priority":   validatePriority,
			"validate_status":     validateStatus,
			"validate_type_name":  validateTypeName,
			"validate_skill_path": validateSkillPath,
		} {
			if err := v.RegisterValidation(name, fn); err != nil {
				log.Fatalf("failed to bind validation rule of %s", name)
			}
		}
	}
}

// httpStatus maps service-layer sentinels to response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, errval.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errval.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, errval.ErrInvalidState), errors.Is(err, errval.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errval.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errval.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errval.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}

func okData(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func createdData(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = 100
	offset = 0
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "100")); err == nil && v > 0 && v <= 1000 {
		limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

// SetupHTTPServer builds the full route tree. healthy reports infra
// readiness for the health endpoint.
func SetupHTTPServer(logic *ServerLogic, authManager *auth.Manager, storage domain.Storage, queueClient domain.Queue) *gin.Engine {
	registerValidators()

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:8080"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		if err := storage.Ping(c); err != nil {
			slog.Error("Postgresql seems not to be pingable in health API", "error", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		if queueClient != nil && !queueClient.IsHealthy() {
			slog.Error("Rabbit is not healthy")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	r.POST("/auth/login", func(c *gin.Context) {
		req := domain.RouterRequestLogin{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}

		resp, err := logic.Login(c, req)
		if err != nil {
			if errors.Is(err, errval.ErrUnauthorized) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
				return
			}
			abortWithError(c, err)
			return
		}
		okData(c, resp)
	})

	setupAdminRoutes(r, logic, authManager)
	setupWorkerRoutes(r, logic, authManager)

	return r
}

func setupAdminRoutes(r *gin.Engine, logic *ServerLogic, authManager *auth.Manager) {
	adminRoutes := r.Group("/admin")
	adminRoutes.Use(authManager.AuthMiddleware(), auth.AdminMiddleware())

	adminRoutes.GET("/workers", func(c *gin.Context) {
		workers, err := logic.ListWorkers(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, workers)
	})

	adminRoutes.POST("/workers", func(c *gin.Context) {
		req := domain.RouterRequestRegisterWorker{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		worker, err := logic.RegisterWorker(c, req)
		if err != nil {
			if errors.Is(err, errval.ErrConflict) {
				c.JSON(http.StatusConflict, gin.H{"error": "A user with this email already exists"})
				return
			}
			abortWithError(c, err)
			return
		}
		createdData(c, worker)
	})

	adminRoutes.DELETE("/workers/:id", func(c *gin.Context) {
		if err := logic.DeleteWorker(c, c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, gin.H{"deleted": true})
	})

	adminRoutes.GET("/workers/task-types", func(c *gin.Context) {
		taskTypes, err := logic.ListTaskTypes(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, taskTypes)
	})

	adminRoutes.POST("/workers/task-types", func(c *gin.Context) {
		req := domain.RouterRequestCreateTaskType{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task type. Name must be 1-100 chars of [a-z0-9_]"})
			return
		}

		tt, err := logic.CreateTaskType(c, req)
		if err != nil {
			if errors.Is(err, errval.ErrConflict) {
				c.JSON(http.StatusConflict, gin.H{"error": "A task type with this name already exists"})
				return
			}
			abortWithError(c, err)
			return
		}
		createdData(c, tt)
	})

	adminRoutes.PUT("/workers/task-types/:id", func(c *gin.Context) {
		req := domain.RouterRequestUpdateTaskType{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tt, err := logic.UpdateTaskType(c, c.Param("id"), req)
		if err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, tt)
	})

	adminRoutes.DELETE("/workers/task-types/:id", func(c *gin.Context) {
		if err := logic.DeleteTaskType(c, c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, gin.H{"deleted": true})
	})

	adminRoutes.GET("/workers/tasks", func(c *gin.Context) {
		filter := domain.TaskFilter{}
		if v := c.Query("status"); v != "" {
			status := domain.TaskStatus(v)
			if !domain.ValidStatus(status) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status. Must be one of: pending, in_progress, completed, failed"})
				return
			}
			filter.Status = &status
		}
		if v := c.Query("assigned_to"); v != "" {
			filter.AssignedTo = &v
		}
		if v := c.Query("type"); v != "" {
			filter.TaskTypeName = &v
		}

		tasks, err := logic.ListTasks(c, filter)
		if err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, tasks)
	})

	adminRoutes.POST("/workers/tasks", func(c *gin.Context) {
		req := domain.RouterRequestCreateTask{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid priority. Must be one of: low, medium, high, urgent"})
			return
		}

		adminID, _ := auth.GetUserIDFromContext(c)
		task, err := logic.CreateTask(c, adminID, req)
		if err != nil {
			abortWithError(c, err)
			return
		}
		createdData(c, task)
	})

	adminRoutes.GET("/workers/tasks/:id", func(c *gin.Context) {
		task, err := logic.GetTask(c, c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, task)
	})

	adminRoutes.PUT("/workers/tasks/:id", func(c *gin.Context) {
		req := domain.RouterRequestUpdateTaskStatus{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			slog.Error("error occurred while binding request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status. Must be one of: pending, in_progress, completed, failed"})
			return
		}

		task, err := logic.AdminUpdateStatus(c, c.Param("id"), domain.TaskStatus(req.Status), req.RetryIncrement)
		if err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, task)
	})

	adminRoutes.DELETE("/workers/tasks/:id", func(c *gin.Context) {
		if err := logic.DeleteTask(c, c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, gin.H{"deleted": true})
	})

	adminRoutes.GET("/workers/tasks/:id/updates", func(c *gin.Context) {
		updates, err := logic.AdminGetUpdates(c, c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, updates)
	})

	adminRoutes.POST("/workers/tasks/:id/updates", func(c *gin.Context) {
		req := domain.RouterRequestCreateUpdate{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
			return
		}

		adminID, _ := auth.GetUserIDFromContext(c)
		update, err := logic.AdminPostUpdate(c, adminID, c.Param("id"), req.Content)
		if err != nil {
			abortWithError(c, err)
			return
		}
		createdData(c, update)
	})

	adminRoutes.GET("/workers/tasks/:id/data", func(c *gin.Context) {
		limit, offset := pagination(c)
		rows, total, err := logic.AdminGetTaskData(c, c.Param("id"), c.Query("data_type"), limit, offset)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    rows,
			"total":   total,
			"limit":   limit,
			"offset":  offset,
		})
	})

	adminRoutes.GET("/workers/tasks/:id/files", func(c *gin.Context) {
		limit, offset := pagination(c)
		files, total, err := logic.AdminListTaskFiles(c, c.Param("id"), limit, offset)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    files,
			"total":   total,
			"limit":   limit,
			"offset":  offset,
		})
	})

	adminRoutes.GET("/workers/tasks/:id/files/:fileId/download", func(c *gin.Context) {
		url, expiresAt, err := logic.AdminDownloadTaskFile(c, c.Param("id"), c.Param("fileId"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, gin.H{"download_url": url, "expires_at": expiresAt})
	})
}

func setupWorkerRoutes(r *gin.Engine, logic *ServerLogic, authManager *auth.Manager) {
	workerRoutes := r.Group("/worker")
	workerRoutes.Use(authManager.AuthMiddleware())

	workerID := func(c *gin.Context) (string, bool) {
		id, ok := auth.GetUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		}
		return id, ok
	}

	workerRoutes.GET("/task-types", func(c *gin.Context) {
		id, ok := workerID(c)
		if !ok {
			return
		}
		if err := logic.VerifyWorker(c, id); err != nil {
			abortWithError(c, err)
			return
		}

		taskTypes, err := logic.ListTaskTypes(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, taskTypes)
	})

	workerRoutes.GET("/task-types/:id", func(c *gin.Context) {
		id, ok := workerID(c)
		if !ok {
			return
		}
		if err := logic.VerifyWorker(c, id); err != nil {
			abortWithError(c, err)
			return
		}

		tt, err := logic.GetTaskType(c, c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, tt)
	})

	workerRoutes.POST("/next-task", func(c *gin.Context) {
		id, ok := workerID(c)
		if !ok {
			return
		}

		req := domain.RouterRequestClaimTask{}
		// Body is optional; an empty body means "anything in the pool".
		_ = c.ShouldBindBodyWith(&req, binding.JSON)

		task, err := logic.ClaimNext(c, id, req.TaskType)
		if err != nil {
			if errors.Is(err, errval.ErrNotFound) {
				c.JSON(http.StatusNoContent, nil)
				return
			}
			abortWithError(c, err)
			return
		}
		okData(c, task)
	})

	workerRoutes.GET("/tasks", func(c *gin.Context) {
		id, ok := workerID(c)
		if !ok {
			return
		}

		var status *domain.TaskStatus
		if v := c.Query("status"); v != "" {
			st := domain.TaskStatus(v)
			if !domain.ValidStatus(st) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status. Must be one of: pending, in_progress, completed, failed"})
				return
			}
			status = &st
		}

		tasks, err := logic.WorkerListTasks(c, id, status)
		if err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, tasks)
	})

	workerRoutes.GET("/tasks/:id", func(c *gin.Context) {
		id, ok := workerID(c)
		if !ok {
			return
		}

		task, err := logic.WorkerGetTask(c, id, c.Param("id"))
		if err != nil {
			if errors.Is(err, errval.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Task not found or not assigned to you"})
				return
			}
			abortWithError(c, err)
			return
		}
		okData(c, task)
	})

	workerRoutes.PUT("/tasks/:id/status", func(c *gin.Context) {
		id, ok := workerID(c)
		if !ok {
			return
		}

		req := domain.RouterRequestUpdateTaskStatus{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status. Must be one of: pending, in_progress, completed, failed"})
			return
		}

		task, err := logic.WorkerUpdateStatus(c, id, c.Param("id"), domain.TaskStatus(req.Status), req.RetryIncrement)
		if err != nil {
			if errors.Is(err, errval.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Task not found or not assigned to you"})
				return
			}
			abortWithError(c, err)
			return
		}
		okData(c, task)
	})

	workerRoutes.POST("/tasks/:id/result", func(c *gin.Context) {
		id, ok := workerID(c)
		if !ok {
			return
		}

		req := domain.RouterRequestPostResult{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "result is required"})
			return
		}

		task, err := logic.WorkerPostResult(c, id, c.Param("id"), req.Result)
		if err != nil {
			if errors.Is(err, errval.ErrInvalidState) {
				c.JSON(http.StatusConflict, gin.H{"error": "Can only post results to tasks with status 'in_progress'"})
				return
			}
			if errors.Is(err, errval.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Task not found or not assigned to you"})
				return
			}
			abortWithError(c, err)
			return
		}
		okData(c, task)
	})

	workerRoutes.GET("/tasks/:id/updates", func(c *gin.Context) {
		id, ok := workerID(c)
		if !ok {
			return
		}

		updates, err := logic.WorkerGetUpdates(c, id, c.Param("id"))
		if err != nil {
			if errors.Is(err, errval.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Task not found or not assigned to you"})
				return
			}
			abortWithError(c, err)
			return
		}
		okData(c, updates)
	})

	workerRoutes.POST("/tasks/:id/updates", func(c *gin.Context) {
		id, ok := workerID(c)
		if !ok {
			return
		}

		req := domain.RouterRequestCreateUpdate{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
			return
		}

		update, err := logic.WorkerPostUpdate(c, id, c.Param("id"), req.Content)
		if err != nil {
			if errors.Is(err, errval.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Task not found or not assigned to you"})
				return
			}
			abortWithError(c, err)
			return
		}
		createdData(c, update)
	})

	workerRoutes.POST("/tasks/:id/data", func(c *gin.Context) {
		id, ok := workerID(c)
		if !ok {
			return
		}

		req := domain.RouterRequestPostTaskData{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "items must be non-empty and at most 500 entries"})
			return
		}

		summary, err := logic.WorkerPostData(c, id, c.Param("id"), req)
		if err != nil {
			if errors.Is(err, errval.ErrInvalidState) {
				c.JSON(http.StatusConflict, gin.H{"error": "Can only post data to tasks with status 'in_progress'"})
				return
			}
			if errors.Is(err, errval.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Task not found or not assigned to you"})
				return
			}
			abortWithError(c, err)
			return
		}
		okData(c, summary)
	})

	workerRoutes.POST("/tasks/:id/files", func(c *gin.Context) {
		id, ok := workerID(c)
		if !ok {
			return
		}

		req := domain.RouterRequestRegisterFile{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "filename and storage_key are required"})
			return
		}

		file, err := logic.WorkerRegisterFile(c, id, c.Param("id"), req)
		if err != nil {
			if errors.Is(err, errval.ErrInvalidArgument) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "storage_key must be under worker-results/{task_id}/"})
				return
			}
			if errors.Is(err, errval.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Task not found or not assigned to you"})
				return
			}
			abortWithError(c, err)
			return
		}
		createdData(c, file)
	})

	workerRoutes.POST("/heartbeat", func(c *gin.Context) {
		id, ok := workerID(c)
		if !ok {
			return
		}

		if err := logic.Heartbeat(c, id); err != nil {
			abortWithError(c, err)
			return
		}
		okData(c, gin.H{"alive": true})
	})
}
