package directory

import (
	"github.com/smallbiznis/staybook/internal/cache"
	"github.com/smallbiznis/staybook/internal/directory/repository"
	"github.com/smallbiznis/staybook/internal/directory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("directory.service",
	fx.Provide(cache.NewDirectoryCache),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
