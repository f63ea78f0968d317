package server

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vdatasim/vdatasim/vdsim/array"
	"github.com/vdatasim/vdatasim/vdsim/stats"
	"github.com/vdatasim/vdatasim/vdsim/storage/erasure_coding"
	"github.com/vdatasim/vdatasim/vdsim/topology"
	"github.com/vdatasim/vdatasim/vdsim/util/version"
)

const maxPeekBytes = 64 * 1024

type ArrayServerOption struct {
	MaxUploadBytes int64
}

// ArrayServer exposes the array engine as a JSON API: grid view, file
// ingest and retrieval, failure injection, integrity checks and rebuild.
type ArrayServer struct {
	option *ArrayServerOption
	array  *array.Array
}

func NewArrayServer(r *mux.Router, option *ArrayServerOption, a *array.Array) *ArrayServer {
	if option.MaxUploadBytes == 0 {
		option.MaxUploadBytes = 256 * 1024 * 1024
	}
	as := &ArrayServer{option: option, array: a}

	r.HandleFunc("/grid", as.gridHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats", as.statsHandler).Methods(http.MethodGet)
	r.HandleFunc("/integrity", as.integrityHandler).Methods(http.MethodGet)
	r.HandleFunc("/rebuild", as.rebuildHandler).Methods(http.MethodPost)
	r.HandleFunc("/drives/{id}", as.driveHandler).Methods(http.MethodPost)
	r.HandleFunc("/drives/{id}/peek", as.peekHandler).Methods(http.MethodGet)
	r.HandleFunc("/domains/{id}", as.domainHandler).Methods(http.MethodPost)
	r.HandleFunc("/files", as.listFilesHandler).Methods(http.MethodGet)
	r.HandleFunc("/files", as.uploadHandler).Methods(http.MethodPost)
	r.HandleFunc("/files/{name:.*}", as.downloadHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(stats.Gather, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return as
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, array.ErrFileNotFound), errors.Is(err, array.ErrInvalidDrive):
		return http.StatusNotFound
	case errors.Is(err, array.ErrUnrecoverableData):
		return http.StatusGone
	case errors.Is(err, array.ErrDriveOffline):
		return http.StatusConflict
	case errors.Is(err, array.ErrInsufficientCapacity):
		return http.StatusInsufficientStorage
	}
	return http.StatusBadRequest
}

type driveView struct {
	Id       topology.DriveId  `json:"id"`
	Role     string            `json:"role"`
	Online   bool              `json:"online"`
	Group    int               `json:"group"`
	ServesAs *topology.DriveId `json:"servesAs,omitempty"`
}

type domainView struct {
	Id     topology.DomainId `json:"id"`
	Name   string            `json:"name"`
	Drives []driveView       `json:"drives"`
}

// gridHandler renders the physical layout: every Dbox with its drives,
// roles, flags and promotion records.
func (as *ArrayServer) gridHandler(w http.ResponseWriter, r *http.Request) {
	topo := as.array.Topology()

	assumed := make(map[topology.DriveId]topology.DriveId)
	for _, p := range topo.Promotions() {
		assumed[p.Spare] = p.ServesAs
	}

	var domains []domainView
	for _, d := range topo.Domains() {
		dv := domainView{Id: d.Id, Name: d.Name()}
		base := topology.DriveId(int(d.Id) * topo.Conf().DrivesPerDomain)
		for i := 0; i < topo.Conf().DrivesPerDomain; i++ {
			id := base + topology.DriveId(i)
			role, _ := topo.RoleOf(id)
			view := driveView{
				Id:     id,
				Role:   role.String(),
				Online: as.array.IsOnline(id),
				Group:  -1,
			}
			if g, _ := topo.GroupOf(id); g != nil {
				view.Group = g.Id
			}
			if servesAs, ok := assumed[id]; ok {
				view.ServesAs = &servesAs
			}
			dv.Drives = append(dv.Drives, view)
		}
		domains = append(domains, dv)
	}

	writeJsonQuiet(w, r, http.StatusOK, map[string]interface{}{
		"Version": version.VERSION,
		"Mode":    as.array.Mode().String(),
		"Domains": domains,
	})
}

func (as *ArrayServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJsonQuiet(w, r, http.StatusOK, as.array.Stats())
}

func (as *ArrayServer) integrityHandler(w http.ResponseWriter, r *http.Request) {
	report := as.array.CheckIntegrity()
	writeJsonQuiet(w, r, http.StatusOK, map[string]interface{}{
		"Rollup":        report.Rollup.String(),
		"Groups":        report.Groups,
		"Domains":       report.Domains,
		"OfflineUnused": report.OfflineUnused,
		"Files":         report.Files,
	})
}

// rebuildHandler starts a rebuild of the listed drives, or of every offline
// drive when the list is empty. Partial outcomes come back in the report,
// not as an HTTP error.
func (as *ArrayServer) rebuildHandler(w http.ResponseWriter, r *http.Request) {
	strategy, err := erasure_coding.ParseStrategy(r.FormValue("strategy"))
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, err)
		return
	}
	var targets []topology.DriveId
	if list := r.FormValue("drives"); list != "" {
		for _, part := range strings.Split(list, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				writeJsonError(w, r, http.StatusBadRequest, fmt.Errorf("bad drive id %q", part))
				return
			}
			targets = append(targets, topology.DriveId(id))
		}
	}
	report, err := as.array.Rebuild(targets, strategy)
	if err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	writeJsonQuiet(w, r, http.StatusOK, report)
}

func parseIdVar(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["id"])
}

func (as *ArrayServer) driveHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIdVar(r)
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, err)
		return
	}
	online, err := strconv.ParseBool(r.FormValue("online"))
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, fmt.Errorf("online must be a bool: %v", err))
		return
	}
	if err := as.array.SetDriveOnline(topology.DriveId(id), online); err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	writeJsonQuiet(w, r, http.StatusOK, map[string]interface{}{"drive": id, "online": online})
}

func (as *ArrayServer) domainHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIdVar(r)
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, err)
		return
	}
	online, err := strconv.ParseBool(r.FormValue("online"))
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, fmt.Errorf("online must be a bool: %v", err))
		return
	}
	if err := as.array.SetDomainOnline(topology.DomainId(id), online); err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	writeJsonQuiet(w, r, http.StatusOK, map[string]interface{}{"domain": id, "online": online})
}

// peekHandler returns a raw byte window of one drive container as a hex
// dump, parity and padding included.
func (as *ArrayServer) peekHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIdVar(r)
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, err)
		return
	}
	offset, _ := strconv.ParseInt(r.FormValue("offset"), 10, 64)
	size := 256
	if s := r.FormValue("size"); s != "" {
		if size, err = strconv.Atoi(s); err != nil {
			writeJsonError(w, r, http.StatusBadRequest, err)
			return
		}
	}
	if size > maxPeekBytes {
		writeJsonError(w, r, http.StatusBadRequest, fmt.Errorf("peek size %d over limit %d", size, maxPeekBytes))
		return
	}
	data, err := as.array.Peek(topology.DriveId(id), offset, size)
	if err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	writeJsonQuiet(w, r, http.StatusOK, map[string]interface{}{
		"drive":  id,
		"offset": offset,
		"hex":    hex.Dump(data),
	})
}

func (as *ArrayServer) listFilesHandler(w http.ResponseWriter, r *http.Request) {
	writeJsonQuiet(w, r, http.StatusOK, as.array.Records())
}

// uploadHandler ingests the request body as one file under ?name=.
func (as *ArrayServer) uploadHandler(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("name")
	if name == "" {
		writeJsonError(w, r, http.StatusBadRequest, errors.New("missing name parameter"))
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, as.option.MaxUploadBytes+1))
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, err)
		return
	}
	if int64(len(data)) > as.option.MaxUploadBytes {
		writeJsonError(w, r, http.StatusRequestEntityTooLarge,
			fmt.Errorf("upload over %d byte limit", as.option.MaxUploadBytes))
		return
	}
	records, err := as.array.WriteFiles([]array.FileStream{{Name: name, Data: data}})
	if err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	glog.V(1).Infof("ingested %q, %d bytes", name, len(data))
	writeJsonQuiet(w, r, http.StatusCreated, records[0])
}

func (as *ArrayServer) downloadHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	data, err := as.array.ReadFileByName(name)
	if err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		glog.V(0).Infof("write response for %q: %v", name, err)
	}
}
