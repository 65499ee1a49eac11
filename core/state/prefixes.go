package state

var (
	crowdsaleSaleKey              = []byte("crowdsale/sale")
	crowdsaleDepositPrefix        = []byte("crowdsale/deposit/")
	crowdsaleInvestorDepositsPref = []byte("crowdsale/investor/deposits/")
	crowdsaleInvestorIndexKey     = []byte("crowdsale/investors")
	crowdsaleListPrefix           = []byte("crowdsale/list/")
	outboxPendingKey              = []byte("outbox/pending")
	outboxEffectPrefix            = []byte("outbox/effect/")
)
