package checkercal

import (
	"go.viam.com/rdk/resource"
)

var family = resource.ModelNamespace("erh").WithFamily("checkercal")
