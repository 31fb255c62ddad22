// Package service exposes a validator over HTTP: stats, balances, blocks,
// peers and prometheus metrics, plus an endpoint to submit transactions.
package service

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/stakeledger/src/ledger"
	"github.com/mosaicnetworks/stakeledger/src/node"
)

// Service ...
type Service struct {
	bindAddress string
	node        *node.Node
	router      *gin.Engine
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	gin.SetMode(gin.ReleaseMode)

	service := Service{
		bindAddress: bindAddress,
		node:        n,
		router:      gin.New(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")

	s.router.Use(gin.Recovery(), cors)

	s.router.GET("/stats", s.GetStats)
	s.router.GET("/balances", s.GetBalances)
	s.router.GET("/blocks", s.GetBlocks)
	s.router.GET("/block/:index", s.GetBlock)
	s.router.GET("/peers", s.GetPeers)
	s.router.POST("/transactions", s.PostTransaction)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		s.node.Metrics().Registry,
		promhttp.HandlerOpts{},
	)))
}

func cors(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Next()
}

// Handler returns the http.Handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	if err := http.ListenAndServe(s.bindAddress, s.router); err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.GetStats())
}

// GetBalances ...
func (s *Service) GetBalances(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.Balances())
}

// GetBlocks ...
func (s *Service) GetBlocks(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.Blocks())
}

// GetBlock ...
func (s *Service) GetBlock(c *gin.Context) {
	param := c.Param("index")

	height, err := strconv.ParseInt(param, 10, 64)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing block index parameter %s", param)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, b := range s.node.Blocks() {
		if b.Height == height {
			c.JSON(http.StatusOK, b)
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
}

// GetPeers ...
func (s *Service) GetPeers(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.GetPeers())
}

// PostTransaction submits a transaction as if it came from a client.
func (s *Service) PostTransaction(c *gin.Context) {
	var tx ledger.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.node.Submit(tx) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transaction refused"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "transaction submitted"})
}
