package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prstake/stake-settlement-service/internal/config"
	"github.com/prstake/stake-settlement-service/internal/services"
	"github.com/prstake/stake-settlement-service/internal/types"
)

type Handler struct {
	config   *config.Config
	services *services.Services
}

type paginationResponse struct {
	NextKey string `json:"next_key"`
}

type PublicResponse[T any] struct {
	Data       T                   `json:"data"`
	Pagination *paginationResponse `json:"pagination,omitempty"`
}

type Result struct {
	Data   interface{}
	Status int
}

// NewResult returns a successful result, with default status code 200
func NewResultWithPagination[T any](data T, pageToken string) *Result {
	res := &PublicResponse[T]{Data: data, Pagination: &paginationResponse{NextKey: pageToken}}
	return &Result{Data: res, Status: http.StatusOK}
}

func NewResult[T any](data T) *Result {
	res := &PublicResponse[T]{Data: data}
	return &Result{Data: res, Status: http.StatusOK}
}

func New(
	ctx context.Context, cfg *config.Config, services *services.Services,
) (*Handler, error) {
	return &Handler{
		config:   cfg,
		services: services,
	}, nil
}

// Identity headers are attached by the authenticating webhook/UI glue in
// front of this service; this service consumes the verified result.
const (
	headerUserId   = "X-User-Id"
	headerRepoRole = "X-Repo-Role"
	headerPrState  = "X-Pr-State"
)

func parseIdentity(request *http.Request) services.Identity {
	return services.Identity{
		UserId:   request.Header.Get(headerUserId),
		RepoRole: request.Header.Get(headerRepoRole),
		PRState:  types.PRState(request.Header.Get(headerPrState)),
	}
}

func parseUint64Query(request *http.Request, key string) (uint64, *types.Error) {
	value := request.URL.Query().Get(key)
	if value == "" {
		return 0, types.NewErrorWithMsg(
			http.StatusBadRequest, types.BadRequest, "missing required query parameter: "+key,
		)
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, types.NewErrorWithMsg(
			http.StatusBadRequest, types.BadRequest, "invalid value for query parameter: "+key,
		)
	}
	return parsed, nil
}
