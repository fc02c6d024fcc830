package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// FromWatermill converts Watermill message headers into sample metadata.
func FromWatermill(md message.Metadata) Metadata {
	result := make(Metadata, len(md))
	for k, v := range md {
		result[k] = v
	}
	return result
}

// ToWatermill converts sample metadata into Watermill message headers.
func ToWatermill(md Metadata) message.Metadata {
	wm := make(message.Metadata, len(md))
	for k, v := range md {
		wm[k] = v
	}
	return wm
}

// InfoFromMessage decodes the sample info of a received message.
func InfoFromMessage(msg *message.Message) SampleInfo {
	return FromWatermill(msg.Metadata).Info(msg.UUID)
}
