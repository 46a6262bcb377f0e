// Package mqtt provides the broker connection used by the device bridge.
//
// Things whose properties and actions live on real devices are reached over
// MQTT. The gateway publishes writes and action requests, and listens for
// state reports, events and action acknowledgements:
//
//	{prefix}/command/{thing}/{property}     gateway -> device
//	{prefix}/state/{thing}/{property}       device -> gateway
//	{prefix}/action/{thing}/{action}        gateway -> device
//	{prefix}/ack/{thing}/{action}/{id}      device -> gateway
//	{prefix}/event/{thing}/{event}          device -> gateway
//	{prefix}/system/status                  retained gateway status + LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllStates(), 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
//
// Subscriptions are restored after a reconnect. TLS should be enabled for
// any broker outside localhost.
package mqtt
