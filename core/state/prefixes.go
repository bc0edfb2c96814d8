package state

var (
	tokenSupplyKeyBytes  = []byte("token/supply")
	tokenBalancePrefix   = []byte("token/balance/")
	tokenAllowancePrefix = []byte("token/allowance/")
	rewardEpochPrefix    = []byte("rewards/epoch/")
	rewardEpochCountKey  = []byte("rewards/epoch-count")
	rewardClaimPrefix    = []byte("rewards/claimed/")
	rewardFundNonceKey   = []byte("rewards/fund-nonce")
	rewardAdminKeyBytes  = []byte("role/reward-admin")
)
