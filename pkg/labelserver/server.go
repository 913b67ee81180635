// Package labelserver serves a local dataset directory with the two annotation
// endpoints the annotator talks to, plus the image bytes themselves.
//
// Layout on disk:
//
//	{root}/{dataset}/images/{split}/{file}
//	{root}/{dataset}/labels/{split}/{stem}.txt
package labelserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/menta2k/box-annotator/internal/utils"
	"github.com/menta2k/box-annotator/pkg/labels"
	"github.com/menta2k/box-annotator/pkg/types"
)

// LabelSplits are the partitions every saved label file is written to
var LabelSplits = []string{"train", "val", "test"}

const (
	defaultSplit = "train"
	maxFormSize  = 10 << 20
)

// Server exposes a dataset root over HTTP
type Server struct {
	root   string
	router *mux.Router
	logger *slog.Logger
}

// SaveResponse is returned by the save endpoint
type SaveResponse struct {
	Success        bool     `json:"success"`
	Filename       string   `json:"filename"`
	NumAnnotations int      `json:"num_annotations"`
	SplitsSaved    []string `json:"splits_saved"`
	LabelPaths     []string `json:"label_paths"`
}

// ErrorResponse carries the error text under "detail"
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// New creates a server over root. A nil logger discards output.
func New(root string, logger *slog.Logger) (*Server, error) {
	if !utils.DirExists(root) {
		return nil, fmt.Errorf("dataset root %s does not exist", root)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{root: root, logger: logger}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/datasets/{name}/annotation/images", s.handleListImages).Methods(http.MethodGet)
	api.HandleFunc("/datasets/{name}/annotation/save", s.handleSave).Methods(http.MethodPost)
	r.HandleFunc("/uploads/datasets/{name}/images/{split}/{file}", s.handleImage).Methods(http.MethodGet, http.MethodHead)
	s.router = r

	return s, nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router so callers can mount extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) datasetDir(name string) (string, error) {
	if err := utils.ValidateName(name); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, name)
	if !utils.DirExists(dir) {
		return "", os.ErrNotExist
	}
	return dir, nil
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	split := r.URL.Query().Get("split")
	if split == "" {
		split = defaultSplit
	}
	if err := utils.ValidateName(split); err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	dir, err := s.datasetDir(name)
	if err != nil {
		s.sendDatasetError(w, name, err)
		return
	}

	imagesDir := filepath.Join(dir, "images", split)
	labelsDir := filepath.Join(dir, "labels", split)
	if !utils.DirExists(imagesDir) {
		sendError(w, fmt.Sprintf("Images directory not found for %s split", split), http.StatusNotFound)
		return
	}

	files, err := utils.ListImageFiles(imagesDir)
	if err != nil {
		s.logger.Error("failed to list images", "dataset", name, "error", err)
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	coll := types.Collection{
		Dataset: name,
		Split:   split,
		Images:  make([]types.ImageDescriptor, 0, len(files)),
	}
	for _, f := range files {
		annotated := utils.NonEmptyFile(filepath.Join(labelsDir, utils.Stem(f)+".txt"))
		coll.Images = append(coll.Images, types.ImageDescriptor{
			Filename:      f,
			Path:          fmt.Sprintf("/uploads/datasets/%s/images/%s/%s", name, split, f),
			HasAnnotation: annotated,
		})
		if annotated {
			coll.Annotated++
		}
	}
	coll.Total = len(coll.Images)

	sendJSON(w, coll, http.StatusOK)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := r.ParseMultipartForm(maxFormSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		sendError(w, "Invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}

	filename := r.FormValue("filename")
	if err := utils.ValidateName(filename); err != nil {
		sendError(w, "Invalid filename", http.StatusBadRequest)
		return
	}
	boxes, err := labels.DecodeJSON(r.FormValue("annotations"))
	if err != nil {
		sendError(w, "Invalid annotations format", http.StatusBadRequest)
		return
	}

	dir, err := s.datasetDir(name)
	if err != nil {
		s.sendDatasetError(w, name, err)
		return
	}

	content := labels.FormatYOLO(boxes)
	resp := SaveResponse{
		Success:        true,
		Filename:       filename,
		NumAnnotations: len(boxes),
	}
	for _, split := range LabelSplits {
		labelsDir := filepath.Join(dir, "labels", split)
		if err := utils.EnsureDir(labelsDir); err != nil {
			sendError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		path := filepath.Join(labelsDir, utils.Stem(filename)+".txt")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			s.logger.Error("failed to write label file", "path", path, "error", err)
			sendError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.SplitsSaved = append(resp.SplitsSaved, split)
		resp.LabelPaths = append(resp.LabelPaths, path)
	}

	s.logger.Info("saved annotations",
		"dataset", name,
		"filename", filename,
		"boxes", len(boxes),
		"size", utils.FormatFileSize(int64(len(content))))

	sendJSON(w, resp, http.StatusOK)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	dir, err := s.datasetDir(vars["name"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	split, file := vars["split"], vars["file"]
	if utils.ValidateName(split) != nil || utils.ValidateName(file) != nil || !utils.IsImageFile(file) {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(dir, "images", split, file)
	if !utils.FileExists(path) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) sendDatasetError(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, os.ErrNotExist) {
		sendError(w, fmt.Sprintf("Dataset '%s' not found", name), http.StatusNotFound)
		return
	}
	sendError(w, err.Error(), http.StatusBadRequest)
}

func sendJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, detail string, status int) {
	sendJSON(w, ErrorResponse{Detail: detail}, status)
}
