package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/spf13/pflag"

	"github.com/flotilla-deploy/flotilla/pkg/api"
	"github.com/flotilla-deploy/flotilla/pkg/configsvc"
	"github.com/flotilla-deploy/flotilla/pkg/deployer"
	"github.com/flotilla-deploy/flotilla/pkg/deployment"
	"github.com/flotilla-deploy/flotilla/pkg/history"
	"github.com/flotilla-deploy/flotilla/pkg/lock"
	"github.com/flotilla-deploy/flotilla/pkg/notify"
	"github.com/flotilla-deploy/flotilla/pkg/plan"
	"github.com/flotilla-deploy/flotilla/pkg/render"
	"github.com/flotilla-deploy/flotilla/pkg/rollout"
	"github.com/flotilla-deploy/flotilla/pkg/variables"
)

// Set at build time via ldflags.
var version = "unreleased"

func main() {
	// Flag domain.
	fs := pflag.NewFlagSet("default", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "DESCRIPTION\n")
		fmt.Fprintf(os.Stderr, "  flotillad is a deployment update daemon.\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		fs.PrintDefaults()
	}
	var (
		listenAddr       = fs.StringP("listen", "l", ":3030", "Listen address for API clients")
		databaseURL      = fs.String("database-url", "", "Postgres URL for the event store; empty keeps events in memory")
		slackHookURL     = fs.String("slack-hook-url", "", "Slack webhook URL for deploy notifications; empty disables them")
		slackUsername    = fs.String("slack-username", "flotilla-deploy", "Slack username for deploy notifications")
		actor            = fs.String("actor", "flotillad", "Actor recorded on audit events")
		versionFlag      = fs.Bool("version", false, "Print the version and exit")
		notificationsPS  = fs.Float64("notifications-per-second", 1, "Rate limit for outgoing notifications")
		versionCheckFlag = fs.Bool("version-check", true, "Periodically check with upstream for new versions")
	)
	fs.Parse(os.Args[1:])

	if *versionFlag {
		fmt.Println(version)
		os.Exit(0)
	}

	// Logger domain.
	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}
	logger.Log("version", version)

	if *versionCheckFlag {
		checkForUpdates(log.With(logger, "component", "checkpoint"))
	}

	// Event store component.
	var events history.EventStore
	{
		logger := log.With(logger, "component", "history")
		if *databaseURL == "" {
			logger.Log("store", "inmem")
			events = history.NewInmem()
		} else {
			var err error
			events, err = history.NewSQL("postgres", *databaseURL)
			if err != nil {
				logger.Log("err", err)
				os.Exit(1)
			}
			logger.Log("store", "postgres")
		}
	}

	// Notification component.
	var notifier notify.Factory
	{
		logger := log.With(logger, "component", "notify")
		if *slackHookURL == "" {
			logger.Log("notifications", "none")
			notifier = notify.NewNopFactory()
		} else {
			logger.Log("notifications", "slack")
			notifier = notify.NewSlackFactory(http.DefaultClient, *slackHookURL, *slackUsername, *notificationsPS)
		}
	}

	// Deployer component.
	var dep *deployer.Deployer
	{
		logger := log.With(logger, "component", "deployer")
		deployments := deployment.NewInmemStore()
		vars := variables.NewInmemStore()
		dep = deployer.New(deployer.Config{
			Deployments: deployments,
			Configs:     configsvc.NewInmemStore(),
			Builder:     &plan.Builder{Deployments: deployments},
			Variables:   variables.NewGenerator(vars),
			Renderer:    render.NewCoordinator(&render.PropertyRenderer{}, vars, log.With(logger, "stage", "render")),
			Locks:       lock.NewService(),
			Events:      events,
			Actor:       *actor,
			Notifier:    notifier,
			Compiler:    rollout.NewNopCompiler(log.With(logger, "stage", "compile")),
			Executors:   rollout.NewSerialExecutorFactory(),
			Updaters:    rollout.NewLoggingUpdaterFactory(log.With(logger, "stage", "rollout")),
			Hooks:       rollout.NewNopHookRunner(log.With(logger, "stage", "hooks")),
			Logger:      logger,
		})
	}

	// HTTP transport domain.
	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		logger.Log("addr", *listenAddr)
		h := api.NewHandler(dep, events, api.NewRouter(), log.With(logger, "component", "api"))
		errc <- http.ListenAndServe(*listenAddr, h)
	}()

	logger.Log("exit", <-errc)
}
