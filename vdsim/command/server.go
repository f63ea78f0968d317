package command

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"

	"github.com/vdatasim/vdatasim/vdsim/server"
)

func init() {
	cmdServer.Run = runServer // break init cycle
}

var cmdServer = &Command{
	UsageLine: "server -dir=/data/vdsim [-port=9433]",
	Short:     "serve the array over an HTTP JSON API",
	Long: `Expose the array as a JSON API: the drive grid, file ingest and
  retrieval, failure injection, integrity classification, rebuild, and
  prometheus metrics on /metrics.

  `,
}

var serverOptions = bindArrayFlags(cmdServer)
var (
	serverBindIp = cmdServer.Flag.String("ip.bind", "0.0.0.0", "ip address to bind to")
	serverPort   = cmdServer.Flag.Int("port", 9433, "http listen port")
)

func runServer(cmd *Command, args []string) bool {
	a, err := serverOptions.open()
	if err != nil {
		glog.Errorf("server: %v", err)
		return false
	}
	defer a.Close()

	router := mux.NewRouter()
	server.NewArrayServer(router, &server.ArrayServerOption{}, a)

	listen := fmt.Sprintf("%s:%d", *serverBindIp, *serverPort)
	glog.V(0).Infof("array server listening on %s", listen)
	httpServer := &http.Server{
		Addr:         listen,
		Handler:      router,
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}
	if err := httpServer.ListenAndServe(); err != nil {
		glog.Errorf("server: %v", err)
		return false
	}
	return true
}
