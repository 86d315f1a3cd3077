package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/beka-birhanu/pairpad-api/api"
	api_i "github.com/beka-birhanu/pairpad-api/api/i"
	"github.com/beka-birhanu/pairpad-api/api/identity"
	judgeapi "github.com/beka-birhanu/pairpad-api/api/judge"
	matchapi "github.com/beka-birhanu/pairpad-api/api/match"
	"github.com/beka-birhanu/pairpad-api/config"
	"github.com/beka-birhanu/pairpad-api/infrastruture/judge"
	"github.com/beka-birhanu/pairpad-api/infrastruture/pubsub"
	"github.com/beka-birhanu/pairpad-api/infrastruture/repo"
	"github.com/beka-birhanu/pairpad-api/infrastruture/sortedstorage"
	"github.com/beka-birhanu/pairpad-api/infrastruture/token"
	"github.com/beka-birhanu/pairpad-api/service"
	"github.com/beka-birhanu/pairpad-api/service/i"
	"github.com/beka-birhanu/pairpad-api/socket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Global variables for dependencies
var (
	mongoClient     *mongo.Client
	redisClient     *redis.Client
	broker          i.PubSub
	sortedQueue     i.SortedQueue
	userRepo        i.UserRepo
	jwtTokenizer    i.Tokenizer
	authService     i.Authenticator
	matchClient     i.Matcher
	matchmaker      *service.Matchmaker
	codeRunner      i.CodeRunner
	authController  api_i.Controller
	matchController api_i.Controller
	judgeController api_i.Controller
	coordinator     *socket.Coordinator
	router          *api.Router
)

func initLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func initMongo(ctx context.Context) {
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%v", config.Envs.DBUser, config.Envs.DBPassword, config.Envs.DBHost, config.Envs.DBPort)

	clientOptions := options.Client().ApplyURI(uri)
	var err error
	mongoClient, err = mongo.Connect(ctx, clientOptions)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to MongoDB")
		os.Exit(1)
	}
	if err = mongoClient.Ping(ctx, nil); err != nil {
		log.Error().Err(err).Msg("MongoDB ping failed")
		os.Exit(1)
	}
	log.Info().Msg("Connected to MongoDB")
}

func initRedis(ctx context.Context) {
	redisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Envs.RedisHost, config.Envs.RedisPort),
		Password: config.Envs.RedisPassword,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("Redis ping failed")
		os.Exit(1)
	}
	log.Info().Msg("Connected to Redis")
}

func initBroker() {
	var err error
	broker, err = pubsub.NewRedisPubSub(redisClient)
	if err != nil {
		log.Error().Err(err).Msg("Creating broker")
		os.Exit(1)
	}
	log.Info().Msg("Broker initialized")
}

func initSortedQueue() {
	var err error
	sortedQueue, err = sortedstorage.NewRedisSortedQueue(redisClient, config.Envs.MatchQueueTTL)
	if err != nil {
		log.Error().Err(err).Msg("Creating sorted queue")
		os.Exit(1)
	}
	log.Info().Msg("Sorted queue initialized")
}

func initUserRepo() {
	userRepo = repo.NewUserRepo(mongoClient, config.Envs.DBName, "users")
	log.Info().Msg("User repository initialized")
}

func initJWTTokenizer() {
	jwtTokenizer = token.NewJwtService(config.Envs.JWTSecret, config.Envs.JWTIssuer)
	log.Info().Msg("JWT Tokenizer initialized")
}

func initAuthService() {
	var err error
	authService, err = service.NewAuthService(userRepo, jwtTokenizer)
	if err != nil {
		log.Error().Err(err).Msg("Creating auth service")
		os.Exit(1)
	}
	log.Info().Msg("Auth service initialized")
}

func initMatching(ctx context.Context) {
	var err error
	matchClient, err = service.NewMatchClient(broker, time.Duration(config.Envs.MatchTimeoutMs)*time.Millisecond)
	if err != nil {
		log.Error().Err(err).Msg("Creating match client")
		os.Exit(1)
	}

	matchmaker, err = service.NewMatchmaker(broker, sortedQueue, &service.MatchmakerOptions{
		Workers: config.Envs.MatchWorkers,
	})
	if err != nil {
		log.Error().Err(err).Msg("Creating matchmaker")
		os.Exit(1)
	}

	go func() {
		if err := matchmaker.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("Matchmaker stopped")
		}
	}()
	log.Info().Msg("Matching initialized")
}

func initCodeRunner() {
	codeRunner = judge.NewClient(config.Envs.JudgeURL)
	log.Info().Msg("Code runner initialized")
}

func initControllers() {
	authController = identity.NewIdentityServer(authService)

	var err error
	matchController, err = matchapi.NewMatchController(matchClient, userRepo)
	if err != nil {
		log.Error().Err(err).Msg("Creating match controller")
		os.Exit(1)
	}

	judgeController, err = judgeapi.NewJudgeController(codeRunner)
	if err != nil {
		log.Error().Err(err).Msg("Creating judge controller")
		os.Exit(1)
	}
	log.Info().Msg("Controllers initialized")
}

func initCoordinator() {
	coordinator = socket.NewCoordinator(socket.NewRegistry(), jwtTokenizer)
	log.Info().Msg("Session coordinator initialized")
}

func initRouter(t i.Tokenizer) {
	router = api.NewRouter(api.Config{
		Addr:                    fmt.Sprintf("%s:%v", config.Envs.HostIP, config.Envs.RESTPort),
		BaseURL:                 "/api",
		Controllers:             []api_i.Controller{authController, matchController, judgeController},
		Coordinator:             coordinator,
		AuthorizationMiddleware: identity.Authoriz(t),
	})
	log.Info().Msg("Router initialized")
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initLogger()

	startupCtx, startupCancel := context.WithTimeout(ctx, 60*time.Second)
	defer startupCancel()

	initMongo(startupCtx)
	defer func() {
		_ = mongoClient.Disconnect(ctx)
	}()

	initRedis(startupCtx)
	defer func() {
		_ = redisClient.Close()
	}()

	initBroker()
	initSortedQueue()
	initUserRepo()
	initJWTTokenizer()
	initAuthService()
	initMatching(ctx)
	initCodeRunner()
	initControllers()
	initCoordinator()
	initRouter(jwtTokenizer)

	// Run HTTP server
	if err := router.Run(); err != nil {
		log.Error().Err(err).Msg("Starting server")
		os.Exit(1)
	}
}
