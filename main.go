package main

import (
	"context"
	"flowchain/bizerror"
	"flowchain/client/s3"
	"flowchain/domain"
	"flowchain/es"
	"flowchain/event"
	"flowchain/indices"
	"flowchain/infra/tracing"
	"flowchain/persistence"
	"flowchain/servehttp"
	"flowchain/session"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

const serviceName = "flowchain"

func main() {
	log.Println("service start")

	dbConfig, err := persistence.ParseDatabaseConfigFromEnv()
	if err != nil {
		log.Fatalf("parse database config failed %v\n", err)
	}

	// create database (no conflict)
	if dbConfig.DriverType == "mysql" {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			log.Fatalf("failed to prepare database %v\n", err)
		}
	}

	// connect database
	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		log.Fatalf("database conneciton failed %v\n", err)
	}
	defer ds.Stop()
	persistence.ActiveDataSourceManager = ds

	// database migration (race condition)
	err = ds.GormDB(context.Background()).AutoMigrate(
		&domain.FlowChain{}, &domain.Stage{}, &domain.Step{}, &domain.StepRole{},
		&domain.Transition{}, &domain.FlowBinding{},
		&domain.WorkflowInstance{}, &domain.InstanceStepStatus{},
		&domain.InstanceStageState{}, &domain.Decision{},
		&event.InstanceEventRecord{},
	).Error
	if err != nil {
		log.Fatalf("database migration failed %v\n", err)
	}

	closer, err := tracing.Bootstrap(serviceName)
	if err != nil {
		log.Fatalf("tracer bootstrap failed %v\n", err)
	}
	defer closer.Close()

	if os.Getenv("ELASTICSEARCH_URL") != "" {
		es.CreateClientFromEnv()
		indices.StartCron()
	}
	if os.Getenv("OSS_ENDPOINT") != "" {
		s3.Bootstrap()
	}

	engine := gin.New()
	engine.Use(gin.Logger(), bizerror.ErrorHandling(), tracing.TracingIngress())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, serviceName)
	})

	servehttp.RegisterFlowChainHandler(engine, session.SimpleAuthFilter())
	servehttp.RegisterInstanceHandler(engine, session.SimpleAuthFilter())

	servehttp.StartHTTPServer(engine)
}
