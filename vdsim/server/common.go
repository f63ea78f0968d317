package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/golang/glog"
)

func writeJson(w http.ResponseWriter, r *http.Request, httpStatus int, obj interface{}) (err error) {
	var bytes []byte
	if r.FormValue("pretty") != "" {
		bytes, err = json.MarshalIndent(obj, "", "  ")
	} else {
		bytes, err = json.Marshal(obj)
	}
	if err != nil {
		return
	}
	callback := r.FormValue("callback")
	if callback == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		_, err = w.Write(bytes)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.WriteHeader(httpStatus)
	if _, err = w.Write([]byte(callback)); err != nil {
		return
	}
	if _, err = w.Write([]byte("(")); err != nil {
		return
	}
	fmt.Fprint(w, string(bytes))
	_, err = w.Write([]byte(")"))
	return
}

// wrapper for writeJson - just logs errors
func writeJsonQuiet(w http.ResponseWriter, r *http.Request, httpStatus int, obj interface{}) {
	if err := writeJson(w, r, httpStatus, obj); err != nil {
		glog.V(0).Infof("error writing JSON status %d: %v", httpStatus, err)
	}
}

func writeJsonError(w http.ResponseWriter, r *http.Request, httpStatus int, err error) {
	m := make(map[string]interface{})
	m["error"] = err.Error()
	writeJsonQuiet(w, r, httpStatus, m)
}
