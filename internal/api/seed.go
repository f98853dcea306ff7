package api

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/Kalhara-JA/retail-os/internal/seed"
)

// SeedGenerateRequest is the request body for POST /admin/seed/generate
type SeedGenerateRequest struct {
	OutputPath         string `json:"outputPath,omitempty"`
	IncludeUsers       bool   `json:"includeUsers"`
	GenerateTypeScript bool   `json:"generateTypeScript"`
	OutputDir          string `json:"outputDir,omitempty"`
	Description        string `json:"description,omitempty"`
}

// SeedGenerateResponse describes a finished export
type SeedGenerateResponse struct {
	Success         bool         `json:"success"`
	Message         string       `json:"message"`
	FilePath        string       `json:"filePath"`
	FileName        string       `json:"fileName"`
	Report          *seed.Report `json:"report"`
	TypeScriptFiles []string     `json:"typescriptFiles,omitempty"`
}

// SeedImportRequest is the request body for POST /admin/seed/import
type SeedImportRequest struct {
	SeedFilePath  string `json:"seedFilePath"`
	ClearExisting bool   `json:"clearExisting"`
	IncludeUsers  bool   `json:"includeUsers"`
	Confirm       bool   `json:"confirm"`
}

// SeedImportResponse describes a finished import
type SeedImportResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Report  *seed.Report `json:"report"`
}

// SeedFilesResponse lists seed files
type SeedFilesResponse struct {
	Files []seed.FileInfo `json:"files"`
	Total int             `json:"total"`
}

// handleSeedGenerate handles POST /api/v1/admin/seed/generate
func (s *Server) handleSeedGenerate(w http.ResponseWriter, r *http.Request) {
	var req SeedGenerateRequest
	if err := decodeJSON(r, &req, true); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	opts := seed.ExportOptions{
		IncludeUsers: req.IncludeUsers,
		Description:  req.Description,
	}
	if req.OutputPath != "" {
		path, err := s.deps.Files.Within(req.OutputPath)
		if err != nil {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.OutputPath = path
	}

	var tsDir string
	if req.GenerateTypeScript && req.OutputDir != "" {
		dir, err := s.deps.Files.WithinDir(req.OutputDir)
		if err != nil {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		tsDir = dir
	}

	path, report, err := s.deps.Exporter.GenerateSeedFile(r.Context(), opts)
	if err != nil {
		s.logger.Error("seed export failed", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to generate seed file")
		return
	}

	resp := SeedGenerateResponse{
		Success:  true,
		Message:  "Seed file generated",
		FilePath: path,
		FileName: filepath.Base(path),
		Report:   report,
	}

	if req.GenerateTypeScript {
		// An empty dir writes to the exporter's typescript/ subdirectory
		files, _, err := s.deps.Exporter.GenerateTypeScriptFiles(r.Context(), tsDir, req.IncludeUsers)
		if err != nil {
			s.logger.Error("typescript export failed", "dir", tsDir, "error", err)
			sendError(w, http.StatusInternalServerError, "Failed to generate TypeScript files")
			return
		}
		resp.TypeScriptFiles = files
	}

	s.logger.Info("seed file generated",
		"path", path,
		"admin", adminName(r.Context()),
		"failed", len(report.Failed()),
	)
	sendJSON(w, http.StatusOK, resp)
}

// handleSeedImport handles POST /api/v1/admin/seed/import
func (s *Server) handleSeedImport(w http.ResponseWriter, r *http.Request) {
	var req SeedImportRequest
	if err := decodeJSON(r, &req, false); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SeedFilePath == "" {
		sendError(w, http.StatusBadRequest, "seedFilePath is required")
		return
	}
	if req.ClearExisting && !req.Confirm {
		sendError(w, http.StatusBadRequest, "clearExisting requires confirm")
		return
	}

	path, err := s.deps.Files.Within(req.SeedFilePath)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.deps.Importer.CreateFromFile(r.Context(), path, seed.ImportOptions{
		ClearExisting: req.ClearExisting,
		IncludeUsers:  req.IncludeUsers,
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			sendError(w, http.StatusNotFound, "Seed file not found")
			return
		}
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("seed file imported via API",
		"path", path,
		"admin", adminName(r.Context()),
		"clear_existing", req.ClearExisting,
	)
	sendJSON(w, http.StatusOK, SeedImportResponse{
		Success: true,
		Message: "Seed data imported",
		Report:  report,
	})
}

// handleSeedFiles handles GET /api/v1/admin/seed/files
func (s *Server) handleSeedFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.deps.Files.List()
	if err != nil {
		s.logger.Error("failed to list seed files", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to list seed files")
		return
	}
	sendJSON(w, http.StatusOK, SeedFilesResponse{Files: files, Total: len(files)})
}

// handleSeedDownload handles GET /api/v1/admin/seed/files/{name}
func (s *Server) handleSeedDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	file, info, err := s.deps.Files.Open(name)
	if err != nil {
		sendSeedFileError(w, err)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+info.Name+`"`)
	http.ServeContent(w, r, info.Name, info.ModTime, file)
}

// handleSeedDelete handles DELETE /api/v1/admin/seed/files/{name}
func (s *Server) handleSeedDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.deps.Files.Delete(name); err != nil {
		sendSeedFileError(w, err)
		return
	}

	s.logger.Info("seed file deleted", "name", name, "admin", adminName(r.Context()))
	sendJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Seed file deleted"})
}

func sendSeedFileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, seed.ErrInvalidPath):
		sendError(w, http.StatusBadRequest, "Invalid file name")
	case errors.Is(err, seed.ErrFileNotFound):
		sendError(w, http.StatusNotFound, "Seed file not found")
	default:
		sendError(w, http.StatusInternalServerError, "Failed to access seed file")
	}
}
