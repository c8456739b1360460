package internal

import (
	"net/http"
	"streamflix/internal/controllers"
	"streamflix/internal/providers"
	"streamflix/internal/structures"
)

func InitRoutes(apiController *controllers.ApiController, conf *structures.Config) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider(conf)

	routers.Post("/metrics/seeding", http.HandlerFunc(apiController.ReceiveSeeding))
	routers.Get("/metrics/user", http.HandlerFunc(apiController.GetUserMetrics))
	routers.Get("/metrics/user/history", http.HandlerFunc(apiController.GetUserHistory))
	routers.Get("/metrics/leaderboard", http.HandlerFunc(apiController.GetLeaderboard))
	return routers
}
